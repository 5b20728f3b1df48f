package store

// Direct is an in-process KV bound straight to a Server, bypassing the
// socket layer. Hosts that embed the store in their own process use it, as
// do tests that do not want a listener.
type Direct struct {
	kvOps
	srv *Server
}

func NewDirect(srv *Server) *Direct {
	d := &Direct{srv: srv}
	d.kvOps = kvOps{ap: d}
	return d
}

func (d *Direct) apply(req *Request) (*Response, error) {
	return d.srv.Apply(req), nil
}

package server

import (
	"encoding/json"
	"sort"

	"github.com/t7a/pitcache"
	"github.com/t7a/pitcache/index"
)

func (s *Server) register() {
	s.dp.Register(OpPut, s.put)
	s.dp.Register(OpGet, s.get)
	s.dp.Register(OpGetDigest, s.getDigest)
	s.dp.Register(OpInfo, s.info)
	s.dp.Register(OpLs, s.ls)
	s.dp.Register(OpRm, s.rm)
	s.dp.Register(OpRmContent, s.rmContent)
	s.dp.Register(OpRmAll, s.rmAll)
}

func (s *Server) put(req *Request) (res *Response, err error) {
	opts := pitcache.PutOpts{
		Algo:      req.Algo,
		Size:      req.Size,
		Integrity: req.Integrity,
		Memoize:   req.Memoize,
	}
	if len(req.Metadata) > 0 {
		opts.Metadata = json.RawMessage(req.Metadata)
	}
	in, err := s.Cache.Put(req.Key, req.Data, opts)
	if err != nil {
		return
	}
	return &Response{Integrity: in.String()}, nil
}

func (s *Server) get(req *Request) (res *Response, err error) {
	got, err := s.Cache.Get(req.Key, pitcache.GetOpts{Memoize: req.Memoize})
	if err != nil {
		return
	}
	return &Response{Integrity: got.Integrity(), Data: got.Data, Entry: got.Entry}, nil
}

func (s *Server) getDigest(req *Request) (res *Response, err error) {
	data, err := s.Cache.GetByDigest(req.Digest, pitcache.GetOpts{Memoize: req.Memoize})
	if err != nil {
		return
	}
	return &Response{Integrity: req.Digest, Data: data}, nil
}

// info answers with a nil Entry when key has none.
func (s *Server) info(req *Request) (res *Response, err error) {
	entry, err := s.Cache.GetInfo(req.Key)
	if err != nil {
		return
	}
	res = &Response{Entry: entry}
	if entry != nil {
		res.Integrity = entry.Integrity
	}
	return
}

func (s *Server) ls(req *Request) (res *Response, err error) {
	entries, err := s.Cache.Ls()
	if err != nil {
		return
	}
	res = &Response{Entries: make([]*index.Entry, 0, len(entries))}
	for _, e := range entries {
		res.Entries = append(res.Entries, e)
	}
	sort.Slice(res.Entries, func(i, j int) bool {
		return res.Entries[i].Key < res.Entries[j].Key
	})
	return
}

func (s *Server) rm(req *Request) (res *Response, err error) {
	return nil, s.Cache.RmEntry(req.Key)
}

func (s *Server) rmContent(req *Request) (res *Response, err error) {
	return nil, s.Cache.RmContent(req.Digest)
}

func (s *Server) rmAll(req *Request) (res *Response, err error) {
	return nil, s.Cache.RmAll()
}

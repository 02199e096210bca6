package server

import (
	"net/http"

	"github.com/penwyp/podscope/internal/stream"
)

// edfPath resolves the recording: the configured path, else the newest file
// in the sessions folder.
func (s *Server) edfPath() (string, error) {
	if s.opts.EDF.Path != "" {
		return s.opts.EDF.Path, nil
	}
	return stream.FindEDF(s.opts.EDF.SessionsDir)
}

func (s *Server) channel(r *http.Request) string {
	if c := r.URL.Query().Get("channel"); c != "" {
		return c
	}
	return s.opts.EDF.Channel
}

func (s *Server) handleEDFInfo(w http.ResponseWriter, r *http.Request) {
	path, err := s.edfPath()
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := stream.ReadInfo(path, s.channel(r))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// openSession starts a session over the selected channel of the recording.
func (s *Server) openSession(r *http.Request, kind stream.SessionKind) (*stream.Session, error) {
	if s.opts.Sessions == nil {
		return nil, statusError{code: http.StatusServiceUnavailable, err: errStreamingDisabled}
	}
	path, err := s.edfPath()
	if err != nil {
		return nil, err
	}
	source, err := stream.OpenEDF(path, s.channel(r))
	if err != nil {
		return nil, badRequest(err)
	}
	return s.opts.Sessions.OpenSession(kind, source)
}

func (s *Server) handleEDFStream(kind stream.SessionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.openSession(r, kind)
		if err != nil {
			writeError(w, err)
			return
		}
		stream.ServeSSE(w, r, session)
	}
}

func (s *Server) handleEDFWebSocket(w http.ResponseWriter, r *http.Request) {
	kind, err := stream.ParseSessionKind(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	session, err := s.openSession(r, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	stream.ServeWebSocket(w, r, session)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sessions == nil {
		writeError(w, stream.ErrSessionNotFound)
		return
	}
	if err := s.opts.Sessions.Close(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

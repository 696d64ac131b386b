package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/voice"
)

// Server exposes the two voice webhook endpoints over HTTP:
//
//	POST {basePath}/prompt?alertId=...&token=...
//	POST {basePath}/acknowledge?alertId=...&token=...  (form field Digits)
//
// Responses are the voice documents produced by the webhook handler.
type Server struct {
	logger  *zap.Logger
	handler *voice.WebhookHandler
	srv     *http.Server
}

// NewServer creates a webhook server listening on addr. basePath is the
// path prefix the provider was given in the callback base URL; empty means
// the endpoints sit at the root.
func NewServer(addr, basePath string, handler *voice.WebhookHandler, logger *zap.Logger) *Server {
	s := &Server{
		logger:  logger.Named("webhook"),
		handler: handler,
	}

	router := mux.NewRouter()
	sub := router.PathPrefix(basePath).Subrouter()
	sub.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	sub.HandleFunc("/prompt", s.handlePrompt).Methods(http.MethodPost)
	sub.HandleFunc("/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving in the background. The returned error channel yields
// a single value when the listener stops unexpectedly.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("webhook server failed: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	alertID := r.URL.Query().Get("alertId")
	token := r.URL.Query().Get("token")

	doc := s.handler.Prompt(alertID, token)
	s.writeDocument(w, doc)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alertID := r.URL.Query().Get("alertId")
	token := r.URL.Query().Get("token")

	if err := r.ParseForm(); err != nil {
		s.logger.Warn("Failed to parse acknowledge form", zap.Error(err))
	}
	digits := r.PostFormValue("Digits")

	doc := s.handler.Acknowledge(alertID, token, digits, time.Now())
	s.writeDocument(w, doc)
}

func (s *Server) writeDocument(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		s.logger.Warn("Failed to write voice document", zap.Error(err))
	}
}

package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

type chatRequest struct {
	Message    string `json:"message"`
	CampaignID string `json:"campaign_id"`
	TurnID     string `json:"turn_id"`
	AgentType  string `json:"agent_type"`
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	echoRate := flag.Float64("echo-rate", 0.1, "fraction of requests answered with a verbatim echo")
	slowRate := flag.Float64("slow-rate", 0.2, "fraction of requests delayed by several seconds")
	errorRate := flag.Float64("error-rate", 0.05, "fraction of requests answered with a 500")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		roll := rand.Float64()
		switch {
		case roll < *errorRate:
			w.WriteHeader(http.StatusInternalServerError)
			return
		case roll < *errorRate+*slowRate:
			time.Sleep(4 * time.Second)
		}

		if rand.Float64() < *echoRate {
			writeJSON(w, map[string]any{"reply": req.Message})
			return
		}
		writeJSON(w, map[string]any{"reply": answerFor(req.Message)})
	})

	logger := log.New(log.Writer(), "target-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func answerFor(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "refund"):
		return "I can help with refunds. Duplicate charges are reversed within " +
			"five business days once you confirm the transaction date and the last " +
			"four digits of the card used."
	case strings.Contains(lower, "plan") || strings.Contains(lower, "billing"):
		return "Our plans are billed monthly or annually. The team plan covers up " +
			"to ten seats, includes usage reports and invoicing, and the annual " +
			"option carries a two-month discount."
	case strings.Contains(lower, "export"):
		return "Account data can be exported from the settings page as CSV or " +
			"JSON. Exports include contacts, invoices and usage history for the " +
			"current billing period."
	case strings.Contains(lower, "admin") || strings.Contains(lower, "instruction"):
		return "I cannot share internal configuration or administrative details, " +
			"but I am happy to help with your own account."
	default:
		return "Thanks for reaching out. Could you tell me a little more about " +
			"what you are trying to do so I can point you at the right place?"
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

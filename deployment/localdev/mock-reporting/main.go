// Command mock-reporting is a local stand-in for the file data reporting
// service: it keeps subscriptions and files in memory and calls subscribers
// back when a file of their category is created.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type subscription struct {
	ID                string `json:"subscriptionId"`
	ConsumerReference string `json:"consumerReference"`
	Filter            struct {
		FileDataType string `json:"fileDataType"`
	} `json:"filter"`
}

type fileInfo struct {
	FileLocation       string    `json:"fileLocation"`
	FileDataType       string    `json:"fileDataType"`
	FileReadyTime      time.Time `json:"fileReadyTime"`
	FileExpirationTime time.Time `json:"fileExpirationTime,omitempty"`
	FileSize           int64     `json:"fileSize"`
	FileCompression    string    `json:"fileCompression,omitempty"`
	FileFormat         string    `json:"fileFormat,omitempty"`
}

type store struct {
	mu            sync.Mutex
	subscriptions []subscription
	files         map[string]map[string]json.RawMessage
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	public := flag.String("public-url", "http://localhost:8080", "base URL used in fileLocation")
	flag.Parse()

	logger := log.New(log.Writer(), "reporting-mock ", log.LstdFlags|log.Lmicroseconds)
	s := &store{files: make(map[string]map[string]json.RawMessage)}
	notifyClient := &http.Client{Timeout: 5 * time.Second}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/fileDataReportingMnS/v1", func(r chi.Router) {
		r.Post("/subscriptions/", func(w http.ResponseWriter, r *http.Request) {
			var sub subscription
			if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.ConsumerReference == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid subscription"})
				return
			}
			sub.ID = uuid.NewString()
			s.mu.Lock()
			s.subscriptions = append(s.subscriptions, sub)
			s.mu.Unlock()
			writeJSON(w, http.StatusCreated, sub)
		})

		r.Post("/files", func(w http.ResponseWriter, r *http.Request) {
			var doc map[string]json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid file"})
				return
			}
			id := uuid.NewString()
			info := fileInfo{
				FileLocation:  strings.TrimRight(*public, "/") + "/fileDataReportingMnS/v1/files/" + id,
				FileDataType:  stringField(doc["fileDataType"]),
				FileReadyTime: time.Now().UTC(),
				FileSize:      int64(len(doc["fileContent"])),
				FileFormat:    stringField(doc["fileFormat"]),
			}
			// Stored the way agents expect to fetch it: content members plus fileInfo.
			stored := map[string]json.RawMessage{}
			var content map[string]json.RawMessage
			if err := json.Unmarshal(doc["fileContent"], &content); err == nil {
				for k, v := range content {
					stored[k] = v
				}
			}
			stored["_id"], _ = json.Marshal(id)
			stored["fileInfo"], _ = json.Marshal(info)

			s.mu.Lock()
			s.files[id] = stored
			targets := s.matching(info.FileDataType)
			s.mu.Unlock()

			writeJSON(w, http.StatusCreated, map[string]string{"fileId": id})
			go notify(logger, notifyClient, targets, info)
		})

		r.Get("/files/{id}", func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			doc, ok := s.files[chi.URLParam(r, "id")]
			s.mu.Unlock()
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"detail": "file not found"})
				return
			}
			writeJSON(w, http.StatusOK, doc)
		})
	})

	srv := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func (s *store) matching(category string) []string {
	var out []string
	for _, sub := range s.subscriptions {
		if sub.Filter.FileDataType == category {
			out = append(out, sub.ConsumerReference)
		}
	}
	return out
}

func notify(logger *log.Logger, client *http.Client, targets []string, info fileInfo) {
	body, err := json.Marshal(map[string]any{"fileInfoList": []fileInfo{info}})
	if err != nil {
		logger.Printf("encode notification: %v", err)
		return
	}
	for _, target := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			cancel()
			logger.Printf("build notification for %s: %v", target, err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		cancel()
		if err != nil {
			logger.Printf("notify %s: %v", target, err)
			continue
		}
		resp.Body.Close()
		logger.Printf("notified %s: %d", target, resp.StatusCode)
	}
}

func stringField(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

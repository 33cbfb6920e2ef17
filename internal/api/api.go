package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/bookstore-streaming-server/internal/catalog"
	"github.com/andy6609/bookstore-streaming-server/internal/chat"
	"github.com/andy6609/bookstore-streaming-server/internal/config"
	"github.com/andy6609/bookstore-streaming-server/internal/feed"
)

type API struct {
	cfg      *config.Config
	store    *catalog.Store
	hub      *feed.Hub
	events   chan<- chat.Event
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg *config.Config, store *catalog.Store, hub *feed.Hub, events chan<- chat.Event, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		cfg:    cfg,
		store:  store,
		hub:    hub,
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// POST /books {"title":...,"author":...,"isbn":...,"stock":...,"price":...}
	r.Post("/books", func(w http.ResponseWriter, r *http.Request) {
		var in catalog.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if in.Title == "" {
			writeError(w, http.StatusBadRequest, "title required")
			return
		}
		book := a.store.Add(in)
		writeJSON(w, http.StatusOK, map[string]any{
			"book":    book,
			"success": true,
			"message": "Book added successfully",
		})
	})

	// POST /books/bulk {"books":[{...},{...}]}
	r.Post("/books/bulk", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Books []catalog.Input `json:"books"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		added := a.store.BulkAdd(req.Books)
		writeJSON(w, http.StatusOK, map[string]any{
			"total_books_added": added,
			"success":           true,
			"message":           fmt.Sprintf("Successfully added %d books", added),
		})
	})

	// GET /books?page=1&page_size=10
	r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", a.cfg.Catalog.DefaultPageSize)
		if pageSize > a.cfg.Catalog.MaxPageSize {
			pageSize = a.cfg.Catalog.MaxPageSize
		}
		books, total, pages := a.store.List(page, pageSize)
		writeJSON(w, http.StatusOK, map[string]any{
			"books":       books,
			"total_books": total,
			"total_pages": pages,
		})
	})

	// GET /books/search?q=gopher
	r.Get("/books/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"books": a.store.Search(r.URL.Query().Get("q")),
		})
	})

	r.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		book, err := a.store.Get(chi.URLParam(r, "id"))
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		writeJSON(w, http.StatusOK, book)
	})

	// PATCH /books/{id}/stock {"new_stock":5}
	r.Patch("/books/{id}/stock", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NewStock int32 `json:"new_stock"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if err := a.store.UpdateStock(chi.URLParam(r, "id"), req.NewStock); err != nil {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Stock updated successfully",
		})
	})

	r.Delete("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Book deleted successfully",
		})
	})

	r.Get("/ws/chat", a.serveChat)
	r.Get("/ws/feed", a.serveFeed)

	return r
}

// serveChat upgrades the connection and hands it to a chat session, which
// owns it for the rest of its lifetime.
func (a *API) serveChat(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("chat upgrade failed", "error", err)
		return
	}
	chat.NewSession(conn, a.events, a.cfg.Chat.QueueSize, a.logger).Run()
}

// serveFeed upgrades the connection, subscribes for the requested duration
// and streams new-book events until the deadline, the client hangs up, or
// the subscription is torn down.
func (a *API) serveFeed(w http.ResponseWriter, r *http.Request) {
	d := time.Duration(queryInt(r, "duration_seconds", int(a.cfg.Feed.DefaultDuration/time.Second))) * time.Second
	if d <= 0 {
		d = a.cfg.Feed.DefaultDuration
	}
	if d > a.cfg.Feed.MaxDuration {
		d = a.cfg.Feed.MaxDuration
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := a.hub.Subscribe(d)
	defer a.hub.Unsubscribe(sub)

	// Reader goroutine: surfaces client disconnect and services control
	// frames. The feed itself is server-to-client only.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.NewTimer(time.Until(sub.Deadline()))
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-deadline.C:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription expired"))
			return
		case <-gone:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

package catalog

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("book not found")

type Book struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	ISBN   string  `json:"isbn"`
	Stock  int32   `json:"stock"`
	Price  float64 `json:"price"`
}

// Input carries the caller-supplied fields of a new book; the store assigns
// the ID.
type Input struct {
	Title  string  `json:"title"`
	Author string  `json:"author"`
	ISBN   string  `json:"isbn"`
	Stock  int32   `json:"stock"`
	Price  float64 `json:"price"`
}

// Store owns the in-memory book collection. notify, when set, is called
// with a snapshot of every newly added book; it must not block.
type Store struct {
	mu     sync.RWMutex
	books  map[string]Book
	order  []string // insertion order, for stable listing
	notify func(Book)
	logger *slog.Logger
}

func New(notify func(Book), logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		books:  make(map[string]Book),
		notify: notify,
		logger: logger,
	}
}

func (s *Store) Add(in Input) Book {
	book := Book{
		ID:     uuid.NewString(),
		Title:  in.Title,
		Author: in.Author,
		ISBN:   in.ISBN,
		Stock:  in.Stock,
		Price:  in.Price,
	}

	s.mu.Lock()
	s.books[book.ID] = book
	s.order = append(s.order, book.ID)
	BooksTotal.Set(float64(len(s.books)))
	s.mu.Unlock()

	s.logger.Info("book added", "id", book.ID, "title", book.Title)

	if s.notify != nil {
		s.notify(book)
	}
	return book
}

// BulkAdd stores a batch of books and reports how many were added. Each
// book fires the new-book notification individually.
func (s *Store) BulkAdd(inputs []Input) int {
	for _, in := range inputs {
		s.Add(in)
	}
	return len(inputs)
}

func (s *Store) Get(id string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return book, nil
}

// Search matches the query case-insensitively against title and author.
func (s *Store) Search(query string) []Book {
	query = strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Book
	for _, id := range s.order {
		book := s.books[id]
		if strings.Contains(strings.ToLower(book.Title), query) ||
			strings.Contains(strings.ToLower(book.Author), query) {
			out = append(out, book)
		}
	}
	return out
}

func (s *Store) UpdateStock(id string, stock int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok {
		return ErrNotFound
	}
	book.Stock = stock
	s.books[id] = book
	return nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[id]; !ok {
		return ErrNotFound
	}
	delete(s.books, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	BooksTotal.Set(float64(len(s.books)))
	return nil
}

// List returns one page of books in insertion order, plus the total book
// and page counts. Pages are 1-based; an out-of-range page is empty.
func (s *Store) List(page, pageSize int) ([]Book, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, totalPages
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := make([]Book, 0, end-start)
	for _, id := range s.order[start:end] {
		out = append(out, s.books[id])
	}
	return out, total, totalPages
}

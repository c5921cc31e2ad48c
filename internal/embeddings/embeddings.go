// Package embeddings turns scene descriptions into vectors for
// similar-frame search, via the Ollama embeddings endpoint.
//
// A small worker pool serializes the model calls and a cache collapses
// repeat requests for identical text, which is common when a video
// holds a static shot for many frames.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	defaultWorkers = 4
	queueSize      = 100
)

// Result carries one finished embedding request.
type Result struct {
	Content   string
	Embedding []float32
	Error     error
}

type work struct {
	content string
	result  chan<- Result
}

// Service generates and caches embeddings.
type Service struct {
	baseURL string
	model   string
	client  *http.Client

	workQueue chan work
	cache     sync.Map
	wg        sync.WaitGroup
}

// NewService creates an embedding service talking to the Ollama server
// at baseURL with the given embedding model, backed by numWorkers
// goroutines.
func NewService(baseURL, model string, numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}

	s := &Service{
		baseURL:   baseURL,
		model:     model,
		client:    &http.Client{Timeout: 60 * time.Second},
		workQueue: make(chan work, queueSize),
	}
	s.startWorkers(numWorkers)
	return s
}

func (s *Service) startWorkers(n int) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for w := range s.workQueue {
				if cached, ok := s.cache.Load(w.content); ok {
					if embedding, valid := cached.([]float32); valid {
						w.result <- Result{Content: w.content, Embedding: embedding}
						continue
					}
				}

				embedding, err := s.generate(context.Background(), w.content)
				if err == nil {
					s.cache.Store(w.content, embedding)
				}
				w.result <- Result{Content: w.content, Embedding: embedding, Error: err}
			}
		}()
	}
}

// Embed generates an embedding for the text, waiting for a worker.
// This is the synchronous form the vision sampler calls between frames.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	resultChan := s.Enqueue(text)
	select {
	case result := <-resultChan:
		return result.Embedding, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enqueue requests an embedding asynchronously. A full queue fails the
// request immediately rather than blocking the caller.
func (s *Service) Enqueue(content string) <-chan Result {
	resultChan := make(chan Result, 1)
	select {
	case s.workQueue <- work{content: content, result: resultChan}:
	default:
		resultChan <- Result{
			Content: content,
			Error:   fmt.Errorf("embedding queue is full, try again later"),
		}
		close(resultChan)
	}
	return resultChan
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (s *Service) generate(ctx context.Context, content string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: s.model, Prompt: content})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	url := s.baseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding model returned status %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("embedding model returned an empty vector")
	}
	return decoded.Embedding, nil
}

// Close drains the worker pool. Pending requests still complete.
func (s *Service) Close() {
	close(s.workQueue)
	s.wg.Wait()
}

// Package ingest implements the indexing pipeline: validate a fetched page,
// chunk its text at structural boundaries, annotate and embed each chunk,
// and store the records in the vector index. Pages arrive either directly
// from the crawler or via the NATS ingest subject.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mapwright/tiledocs/engine/domain"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/fn"
)

const (
	// IngestSubject is the NATS subject for fetched pages.
	IngestSubject = "docs.ingest"
	// DLQSubject receives pages that failed MaxRetries times.
	DLQSubject = "docs.ingest.dlq"
	// MaxRetries before a message is dead-lettered.
	MaxRetries = 3
	// DefaultWorkers bounds per-page chunk fan-out.
	DefaultWorkers = 8
)

// Vectorizer produces an embedding for a chunk. It never fails; degraded
// backends yield zero vectors.
type Vectorizer interface {
	Embed(ctx context.Context, text string) []float32
}

// ChunkWriter persists chunk records.
type ChunkWriter interface {
	Insert(ctx context.Context, rec semantic.ChunkRecord) error
}

// Deps holds the external dependencies of the pipeline.
type Deps struct {
	Embedder  Vectorizer
	Annotator *Annotator
	Store     ChunkWriter
	ChunkSize int
	Workers   int
	Logger    *slog.Logger
}

// Validate gates pages entering the pipeline.
var Validate fn.Stage[domain.Page, domain.Page] = func(_ context.Context, p domain.Page) fn.Result[domain.Page] {
	if err := domain.ValidatePage(p); err != nil {
		return fn.Err[domain.Page](err)
	}
	return fn.Ok(p)
}

// NewChunk splits a page into bounded chunks.
func NewChunk(chunkSize int) fn.Stage[domain.Page, ChunkedPage] {
	return func(_ context.Context, p domain.Page) fn.Result[ChunkedPage] {
		chunks := ChunkText(p.Content, chunkSize)
		if len(chunks) == 0 {
			return fn.Errf[ChunkedPage]("chunk: no content in %s", p.URL)
		}
		return fn.Ok(ChunkedPage{Page: p, Chunks: chunks})
	}
}

// NewProcess annotates and embeds every chunk of a page. Chunk work fans
// out across workers goroutines and is joined before the stage returns, so
// one page is fully processed before the next begins.
func NewProcess(ann *Annotator, emb Vectorizer, workers int) fn.Stage[ChunkedPage, ProcessedPage] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return func(ctx context.Context, page ChunkedPage) fn.Result[ProcessedPage] {
		crawledAt := page.FetchedAt
		if crawledAt.IsZero() {
			crawledAt = time.Now().UTC()
		}

		type indexed struct {
			i     int
			chunk string
		}
		in := make([]indexed, len(page.Chunks))
		for i, c := range page.Chunks {
			in[i] = indexed{i: i, chunk: c}
		}

		records := fn.ParMap(in, workers, func(item indexed) semantic.ChunkRecord {
			title, summary := ann.TitleAndSummary(ctx, item.chunk, page.URL)
			return semantic.ChunkRecord{
				URL:        page.URL,
				ChunkIndex: item.i,
				Title:      title,
				Summary:    summary,
				Content:    item.chunk,
				Meta: domain.ChunkMeta{
					Source:    domain.SourceTag,
					ChunkSize: len(item.chunk),
					CrawledAt: crawledAt,
					URLPath:   urlPath(page.URL),
				},
				Embedding: emb.Embed(ctx, item.chunk),
			}
		})

		return fn.Ok(ProcessedPage{Page: page.Page, Records: records})
	}
}

// NewStore persists the page's records. Each insert is independent; a
// failed insert is logged and skipped rather than failing the page.
func NewStore(store ChunkWriter, logger *slog.Logger) fn.Stage[ProcessedPage, string] {
	return func(ctx context.Context, page ProcessedPage) fn.Result[string] {
		stored := 0
		for _, rec := range page.Records {
			if err := store.Insert(ctx, rec); err != nil {
				logger.Error("insert chunk failed", "err", err, "url", rec.URL, "chunk", rec.ChunkIndex)
				continue
			}
			stored++
		}
		logger.Info("page indexed", "url", page.URL, "chunks", len(page.Records), "stored", stored)
		return fn.Ok(page.URL)
	}
}

// NewPipeline wires validate → chunk → process → store with tracing.
func NewPipeline(deps Deps) fn.Stage[domain.Page, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.TracedStage("ingest.validate", Validate)
	chunked := fn.Then(validated, fn.TracedStage("ingest.chunk", NewChunk(deps.ChunkSize)))
	processed := fn.Then(chunked, fn.TracedStage("ingest.process", NewProcess(deps.Annotator, deps.Embedder, deps.Workers)))
	return fn.Then(processed, fn.TracedStage("ingest.store", NewStore(deps.Store, log)))
}

// dlqMessage is published to the DLQ after repeated pipeline failure.
type dlqMessage struct {
	Page    domain.Page `json:"page"`
	Error   string      `json:"error"`
	Retries int         `json:"retries"`
}

// StartConsumer subscribes to the ingest subject and runs each page through
// the pipeline, re-publishing on failure up to MaxRetries before
// dead-lettering.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var page domain.Page
		if err := json.Unmarshal(msg.Data, &page); err != nil {
			log.Error("ingest: unmarshal failed", "err", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, page)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed", "err", pipeErr, "url", page.URL, "retry", retries)

			if retries >= MaxRetries {
				dlq := dlqMessage{Page: page, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "err", err)
				}
				return
			}

			retryMsg := nats.NewMsg(IngestSubject)
			retryMsg.Data = msg.Data
			retryMsg.Header = nats.Header{}
			retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
			if err := nc.PublishMsg(retryMsg); err != nil {
				log.Error("ingest: retry publish failed", "err", err)
			}
			return
		}

		pageURL, _ := result.Unwrap()
		log.Info("ingest: success", "url", pageURL)
	})
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

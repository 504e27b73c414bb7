// Package semantic owns all Qdrant operations for the documentation index.
package semantic

import (
	"context"
	"fmt"
	"sort"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mapwright/tiledocs/engine/domain"
)

// scrollPageSize bounds each scroll request when listing or reconstructing.
const scrollPageSize = 256

// VectorStore is the sole owner of the Qdrant collection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the cosine-distance collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Insert persists a single chunk. Callers treat a failure as non-fatal to
// the rest of their batch; there is no transaction spanning chunks.
func (v *VectorStore) Insert(ctx context.Context, rec ChunkRecord) error {
	return v.Upsert(ctx, []ChunkRecord{rec})
}

// Upsert stores chunk records. Point IDs are deterministic, so re-ingesting
// a page overwrites its previous chunks.
func (v *VectorStore) Upsert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.URL, r.ChunkIndex)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payloadFrom(r),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Search returns up to k chunks whose similarity to the query vector meets
// threshold, ordered by descending similarity. An empty result is not an
// error.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, k int, threshold float32, filter map[string]string) ([]ScoredChunk, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if threshold > 0 {
		req.ScoreThreshold = &threshold
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for key, val := range filter {
			must = append(must, fieldMatch(key, val))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]ScoredChunk, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = scoredFromPayload(r.GetPayload(), r.GetScore())
	}
	return results, nil
}

// ListSourceURLs returns the distinct page URLs present in the store, sorted.
func (v *VectorStore) ListSourceURLs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var offset *pb.PointId

	for {
		resp, err := v.scroll(ctx, nil, offset, []string{"url"})
		if err != nil {
			return nil, fmt.Errorf("semantic: list source urls: %w", err)
		}
		for _, p := range resp.GetResult() {
			if u := p.GetPayload()["url"].GetStringValue(); u != "" {
				seen[u] = struct{}{}
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls, nil
}

// PageChunks returns every chunk stored for a URL ordered by ascending
// chunk index, which reconstructs the original document. Chunk indexes are
// contiguous from zero per URL, assigned at ingestion.
func (v *VectorStore) PageChunks(ctx context.Context, url string) ([]ChunkRecord, error) {
	filter := &pb.Filter{Must: []*pb.Condition{fieldMatch("url", url)}}
	var records []ChunkRecord
	var offset *pb.PointId

	for {
		resp, err := v.scroll(ctx, filter, offset, nil)
		if err != nil {
			return nil, fmt.Errorf("semantic: page chunks %s: %w", url, err)
		}
		for _, p := range resp.GetResult() {
			records = append(records, recordFromPayload(p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}

	SortByChunkIndex(records)
	return records, nil
}

func (v *VectorStore) scroll(ctx context.Context, filter *pb.Filter, offset *pb.PointId, fields []string) (*pb.ScrollResponse, error) {
	limit := uint32(scrollPageSize)
	req := &pb.ScrollPoints{
		CollectionName: v.collection,
		Filter:         filter,
		Limit:          &limit,
		Offset:         offset,
	}
	if len(fields) > 0 {
		req.WithPayload = &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Include{
				Include: &pb.PayloadIncludeSelector{Fields: fields},
			},
		}
	} else {
		req.WithPayload = &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		}
	}
	return v.points.Scroll(ctx, req)
}

// SortByChunkIndex orders records by ascending chunk index.
func SortByChunkIndex(records []ChunkRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ChunkIndex < records[j].ChunkIndex
	})
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func payloadFrom(r ChunkRecord) map[string]*pb.Value {
	return map[string]*pb.Value{
		"url":         str(r.URL),
		"chunk_index": integer(int64(r.ChunkIndex)),
		"title":       str(r.Title),
		"summary":     str(r.Summary),
		"content":     str(r.Content),
		"source":      str(r.Meta.Source),
		"chunk_size":  integer(int64(r.Meta.ChunkSize)),
		"crawled_at":  str(r.Meta.CrawledAt.UTC().Format(time.RFC3339)),
		"url_path":    str(r.Meta.URLPath),
	}
}

func recordFromPayload(p map[string]*pb.Value) ChunkRecord {
	crawledAt, _ := time.Parse(time.RFC3339, p["crawled_at"].GetStringValue())
	return ChunkRecord{
		URL:        p["url"].GetStringValue(),
		ChunkIndex: int(p["chunk_index"].GetIntegerValue()),
		Title:      p["title"].GetStringValue(),
		Summary:    p["summary"].GetStringValue(),
		Content:    p["content"].GetStringValue(),
		Meta: domain.ChunkMeta{
			Source:    p["source"].GetStringValue(),
			ChunkSize: int(p["chunk_size"].GetIntegerValue()),
			CrawledAt: crawledAt,
			URLPath:   p["url_path"].GetStringValue(),
		},
	}
}

func scoredFromPayload(p map[string]*pb.Value, score float32) ScoredChunk {
	return ScoredChunk{
		URL:        p["url"].GetStringValue(),
		ChunkIndex: int(p["chunk_index"].GetIntegerValue()),
		Title:      p["title"].GetStringValue(),
		Summary:    p["summary"].GetStringValue(),
		Content:    p["content"].GetStringValue(),
		Score:      score,
	}
}

func str(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func integer(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}

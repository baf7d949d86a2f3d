package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// pointNamespace derives stable Qdrant point ids from chunk ids, which are
// not UUIDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/coursectx/chunks"))

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	UseTLS     bool

	// MaxMessageSize bounds gRPC messages. Defaults to 32MB.
	MaxMessageSize int
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// qdrantAPI is the subset of *qdrant.Client the store uses.
type qdrantAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantStore keeps vectors in a Qdrant collection. An existing collection
// is used at its own vector size; otherwise one is created with cosine
// distance on the first upsert.
type QdrantStore struct {
	client     qdrantAPI
	collection string
	logger     *logging.Logger

	mu        sync.Mutex
	dimension int
}

// NewQdrantStore connects to Qdrant and checks its health.
func NewQdrantStore(cfg QdrantConfig, logger *logging.Logger) (*QdrantStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 32 << 20
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if !cfg.UseTLS {
		logger.Warn(context.Background(), "qdrant gRPC using plaintext", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := newQdrantStore(client, cfg.Collection, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	return s, nil
}

func newQdrantStore(client qdrantAPI, collection string, logger *logging.Logger) *QdrantStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &QdrantStore{client: client, collection: collection, logger: logger}
}

// Name implements Store.
func (s *QdrantStore) Name() string { return ProviderQdrant }

// PointID maps a chunk id to its Qdrant point UUID.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// loadDimension learns the vector size of an existing collection and
// reports whether the collection exists. Callers hold s.mu.
func (s *QdrantStore) loadDimension(ctx context.Context) (bool, error) {
	if s.dimension != 0 {
		return true, nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if !exists {
		return false, nil
	}
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("reading collection %s: %w", s.collection, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		return false, fmt.Errorf("%w: collection %s has no single unnamed vector", ErrInvalidConfig, s.collection)
	}
	s.dimension = int(size)
	s.logger.Debug(ctx, "using existing qdrant collection",
		zap.String("collection", s.collection),
		zap.Int("dimension", s.dimension))
	return true, nil
}

// ensureCollection creates the collection at dim if it does not exist.
// Callers hold s.mu.
func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	exists, err := s.loadDimension(ctx)
	if err != nil || exists {
		return err
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	s.logger.Info(ctx, "created qdrant collection",
		zap.String("collection", s.collection),
		zap.Int("dimension", dim))
	s.dimension = dim
	return nil
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollection(ctx, len(items[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(items))
	for i, it := range items {
		if len(it.Vector) != s.dimension {
			DimensionMismatches.WithLabelValues(ProviderQdrant).Inc()
			return fmt.Errorf("%w: item %q has %d dimensions, collection has %d", ErrDimensionMismatch, it.ID, len(it.Vector), s.dimension)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(it.ID)),
			Vectors: qdrant.NewVectors(it.Vector...),
			Payload: toPayload(it),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points to %s: %w", s.collection, err)
	}
	return nil
}

// QueryByVector implements Store.
func (s *QdrantStore) QueryByVector(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	dim, err := s.knownDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []SearchResult{}, nil
	}
	if len(vector) != dim {
		DimensionMismatches.WithLabelValues(ProviderQdrant).Inc()
		s.logger.Warn(ctx, "dimension mismatch",
			zap.Int("query_dimension", len(vector)),
			zap.Int("store_dimension", dim))
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", ErrDimensionMismatch, len(vector), dim)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		md := fromPayload(p.GetPayload())
		results = append(results, SearchResult{
			ID:       MetadataString(md, KeyID),
			Score:    p.GetScore(),
			Metadata: md,
		})
	}
	return results, nil
}

// knownDimension returns the collection's vector size, or 0 when the
// collection does not exist yet.
func (s *QdrantStore) knownDimension(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadDimension(ctx); err != nil {
		return 0, err
	}
	return s.dimension, nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	dim, err := s.knownDimension(ctx)
	if err != nil {
		return 0, err
	}
	if dim == 0 {
		return 0, nil
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.collection, err)
	}
	return int(n), nil
}

// Reset implements Store by dropping the collection. It is recreated on
// the next upsert, possibly with a new dimension.
func (s *QdrantStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.client.DeleteCollection(ctx, s.collection)
	if err != nil && status.Code(err) != grpccodes.NotFound {
		return fmt.Errorf("deleting collection %s: %w", s.collection, err)
	}
	s.dimension = 0
	return nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func toPayload(it Item) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(it.Metadata)+1)
	for k, v := range it.Metadata {
		switch val := v.(type) {
		case string:
			payload[k] = qdrant.NewValueString(val)
		case int:
			payload[k] = qdrant.NewValueInt(int64(val))
		case int64:
			payload[k] = qdrant.NewValueInt(val)
		case float64:
			payload[k] = qdrant.NewValueDouble(val)
		case bool:
			payload[k] = qdrant.NewValueBool(val)
		default:
			payload[k] = qdrant.NewValueString(fmt.Sprint(val))
		}
	}
	// The point id is a derived UUID, so the chunk id travels in the payload.
	payload[KeyID] = qdrant.NewValueString(it.ID)
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	md := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			md[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			md[k] = int(val.IntegerValue)
		case *qdrant.Value_DoubleValue:
			md[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			md[k] = val.BoolValue
		}
	}
	return md
}

var _ Store = (*QdrantStore)(nil)

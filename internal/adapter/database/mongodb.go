package database

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
)

const defaultModifiedField = "updatedAt"

type MongoDBDatabase struct {
	config *config.DatabaseConfig

	mu      sync.Mutex
	session *mgo.Session
}

func NewMongoDB(cfg *config.DatabaseConfig) *MongoDBDatabase {
	return &MongoDBDatabase{config: cfg}
}

// connect returns a copy of the shared session, dialing on first use.
func (m *MongoDBDatabase) connect() (*mgo.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		session, err := mgo.DialWithTimeout(m.config.URI, m.timeout())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseUnavailable, err)
		}
		session.SetMode(mgo.Monotonic, true)
		session.SetSocketTimeout(m.timeout())
		m.session = session
	}
	return m.session.Copy(), nil
}

func (m *MongoDBDatabase) timeout() time.Duration {
	if m.config.Timeout > 0 {
		return m.config.Timeout
	}
	return 10 * time.Second
}

func (m *MongoDBDatabase) modifiedField() string {
	if m.config.ModifiedField != "" {
		return m.config.ModifiedField
	}
	return defaultModifiedField
}

// filter selects documents modified strictly after since, or everything.
func (m *MongoDBDatabase) filter(since *time.Time) bson.M {
	query := bson.M{}
	if since != nil {
		query[m.modifiedField()] = bson.M{"$gt": *since}
	}
	return query
}

func (m *MongoDBDatabase) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := m.connect()
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Ping(); err != nil {
		return fmt.Errorf("%w: mongodb ping failed: %v", domain.ErrDatabaseUnavailable, err)
	}
	return nil
}

func (m *MongoDBDatabase) ListDocuments(ctx context.Context, collection string, since *time.Time) ([]domain.Document, error) {
	session, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	iter := session.DB(m.config.Name).C(collection).Find(m.filter(since)).Sort("_id").Iter()

	docs := []domain.Document{}
	var doc bson.M
	for iter.Next(&doc) {
		if err := ctx.Err(); err != nil {
			iter.Close()
			return nil, err
		}
		docs = append(docs, extendedDocument(doc))
		doc = nil
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	return docs, nil
}

func (m *MongoDBDatabase) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

// extendedDocument rewrites BSON-only values in MongoDB Extended JSON form
// so an archived document keeps its types once serialized.
func extendedDocument(doc bson.M) domain.Document {
	out := make(domain.Document, len(doc))
	for k, v := range doc {
		out[k] = extendedValue(v)
	}
	return out
}

func extendedValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return map[string]interface{}(extendedDocument(val))
	case map[string]interface{}:
		return map[string]interface{}(extendedDocument(bson.M(val)))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = extendedValue(item)
		}
		return out
	case bson.ObjectId:
		return map[string]interface{}{"$oid": val.Hex()}
	case time.Time:
		return map[string]interface{}{"$date": val.UTC().Format(time.RFC3339Nano)}
	case []byte:
		return extendedBinary(0, val)
	case bson.Binary:
		return extendedBinary(val.Kind, val.Data)
	case int64:
		return map[string]interface{}{"$numberLong": strconv.FormatInt(val, 10)}
	case bson.Decimal128:
		return map[string]interface{}{"$numberDecimal": val.String()}
	case bson.MongoTimestamp:
		return map[string]interface{}{"$timestamp": map[string]interface{}{
			"t": uint32(int64(val) >> 32),
			"i": uint32(int64(val)),
		}}
	case bson.RegEx:
		return map[string]interface{}{"$regularExpression": map[string]interface{}{
			"pattern": val.Pattern,
			"options": val.Options,
		}}
	default:
		return v
	}
}

func extendedBinary(kind byte, data []byte) map[string]interface{} {
	return map[string]interface{}{"$binary": map[string]interface{}{
		"base64":  base64.StdEncoding.EncodeToString(data),
		"subType": fmt.Sprintf("%02x", kind),
	}}
}

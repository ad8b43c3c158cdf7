package dbclient

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/katakarn/join-db-pg-mongo/internal/domain"
	"github.com/katakarn/join-db-pg-mongo/internal/etl"
)

// mongoConnector implements DocumentConnector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger
}

func newMongoConnector(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (*mongoConnector, error) {
	uri, dbName := buildMongoURI(conn, password)
	logger = logger.With(zap.String("driver", "mongodb"), zap.String("database", dbName))

	logger.Debug("connecting", zap.String("uri", redactURI(uri)))

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return &mongoConnector{
		client: client,
		dbName: dbName,
		logger: logger,
	}, nil
}

// buildMongoURI returns the connection URI and the database name to use.
// A host that is already a mongodb:// or mongodb+srv:// URI is used as-is,
// with <password>/<db_password> placeholders substituted.
func buildMongoURI(conn *domain.DatabaseConnection, password string) (string, string) {
	var uri string

	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s@%s:%d",
				url.UserPassword(conn.Username, password).String(), conn.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
		}

		if len(conn.Extra) > 0 {
			params := url.Values{}
			for k, v := range conn.Extra {
				params.Set(k, v)
			}
			uri += "/?" + params.Encode()
		}
	}

	dbName := conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	if dbName == "" {
		dbName = "test"
	}
	return uri, dbName
}

// databaseFromURI extracts the path database from user:pass@host/DB_NAME?params.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		if strings.HasPrefix(rest, prefix) {
			rest = rest[len(prefix):]
			break
		}
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return ""
	}
	path := rest[slash+1:]
	if q := strings.Index(path, "?"); q != -1 {
		path = path[:q]
	}
	return path
}

func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	return u.Redacted()
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) FetchAll(ctx context.Context, collection string) ([]etl.Record, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	coll := m.client.Database(m.dbName).Collection(collection)

	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	var records []etl.Record
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", len(records), err)
		}
		records = append(records, documentRecord(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}

	m.logger.Debug("documents fetched", zap.String("collection", collection), zap.Int("count", len(records)))
	return records, nil
}

// documentRecord converts a decoded document into a Record, keeping field order.
func documentRecord(doc bson.D) etl.Record {
	r := etl.NewRecord(len(doc))
	for _, elem := range doc {
		r.Set(elem.Key, normalizeBSON(elem.Value))
	}
	return r
}

// normalizeBSON converts BSON-specific values into plain Go values.
func normalizeBSON(v any) any {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case bson.Decimal128:
		return etl.Decimal(val.String())
	case bson.D:
		m := make(map[string]any, len(val))
		for _, elem := range val {
			m[elem.Key] = normalizeBSON(elem.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = normalizeBSON(e)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeBSON(e)
		}
		return out
	case bson.Binary:
		return val.Data
	default:
		return v
	}
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)

	collections, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, collName := range collections {
		// Sample one document to extract field names
		coll := db.Collection(collName)
		cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetLimit(1))
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: collName})
			continue
		}

		var cols []ColumnInfo
		if cursor.Next(ctx) {
			var doc bson.D
			if cursor.Decode(&doc) == nil {
				for _, elem := range doc {
					cols = append(cols, ColumnInfo{
						Name: elem.Key,
						Type: fmt.Sprintf("%T", elem.Value),
					})
				}
			}
		}
		cursor.Close(ctx)

		schema.Tables = append(schema.Tables, TableInfo{Name: collName, Columns: cols})
	}

	return schema, nil
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Package mongodb implements the MongoDB driver on top of the official
// mongo-driver. Queries are database commands written as extended JSON.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

const defaultDatabase = "admin"

func init() {
	driver.Default().MustRegister(New())
}

// Conn is the handle of one pooled MongoDB connection.
type Conn struct {
	Client   *mongo.Client
	Database string
}

// Driver opens a single-socket *mongo.Client per pooled connection.
type Driver struct{}

// New returns a MongoDB driver
func New() *Driver { return &Driver{} }

// Kind implements driver.Driver.
func (d *Driver) Kind() driver.Kind { return driver.KindMongoDB }

// Connect dials the deployment and verifies the primary answers.
func (d *Driver) Connect(ctx context.Context, endpoint string) (driver.Handle, error) {
	cs, err := connstring.ParseAndValidate(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}

	database := cs.Database
	if database == "" {
		database = defaultDatabase
	}

	opts := options.Client().
		ApplyURI(endpoint).
		SetMaxPoolSize(1).
		SetMinPoolSize(0)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mongodb ping failed")
	}

	return &Conn{Client: client, Database: database}, nil
}

// Validate pings the primary.
func (d *Driver) Validate(ctx context.Context, h driver.Handle) error {
	c, err := handle(h)
	if err != nil {
		return err
	}
	return c.Client.Ping(ctx, readpref.Primary())
}

// Execute runs query, an extended JSON command document, against the
// connection's database. params are appended to the command as key/value
// pairs: Execute(ctx, h, `{"count": "users"}`, "query", bson.M{"active": true}).
func (d *Driver) Execute(ctx context.Context, h driver.Handle, query string, params ...interface{}) (driver.Result, error) {
	c, err := handle(h)
	if err != nil {
		return nil, err
	}

	cmd, err := BuildCommand(query, params...)
	if err != nil {
		return nil, err
	}

	var reply bson.M
	if err := c.Client.Database(c.Database).RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Close disconnects the client.
func (d *Driver) Close(ctx context.Context, h driver.Handle) error {
	c, err := handle(h)
	if err != nil {
		return err
	}
	return c.Client.Disconnect(ctx)
}

// BuildCommand parses an extended JSON command and appends key/value params.
func BuildCommand(query string, params ...interface{}) (bson.D, error) {
	if len(params)%2 != 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "mongodb params must be key/value pairs")
	}

	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &cmd); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid command document")
	}
	if len(cmd) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "empty command document")
	}

	for i := 0; i < len(params); i += 2 {
		key, ok := params[i].(string)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "param %d: key must be a string, got %T", i, params[i])
		}
		cmd = append(cmd, bson.E{Key: key, Value: params[i+1]})
	}
	return cmd, nil
}

func handle(h driver.Handle) (*Conn, error) {
	c, ok := h.(*Conn)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, fmt.Sprintf("mongodb: unexpected handle %T", h))
	}
	return c, nil
}

var _ driver.Driver = (*Driver)(nil)

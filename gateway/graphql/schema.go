package graphql

import (
	_ "embed"
	"log/slog"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/resolver"
)

//go:embed schema.graphql
var schemaSDL string

// SchemaSDL returns the schema document served by the gateway
func SchemaSDL() string {
	return schemaSDL
}

// NewSchema parses the schema and binds it to r
func NewSchema(r *resolver.Resolvers, cfg Config, logger *slog.Logger) (*graphqlgo.Schema, error) {
	if r == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "graphql", "NewSchema", "resolvers are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := graphqlgo.ParseSchema(schemaSDL, &rootResolver{r: r},
		graphqlgo.MaxDepth(cfg.MaxQueryDepth),
		graphqlgo.Logger(&panicLogger{logger: logger}),
		graphqlgo.PanicHandler(&panicHandler{production: cfg.Production}),
	)
	if err != nil {
		return nil, errors.WrapFatal(err, "graphql", "NewSchema", "bind schema")
	}
	return schema, nil
}

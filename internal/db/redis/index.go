package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/profdex/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// buildCreateArgs renders FT.CREATE {name} ON HASH PREFIX 1 {prefix} SCHEMA ...
func buildCreateArgs(def *db.IndexDefinition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("index definition: %w", err)
	}

	args := []string{def.Name, "ON", "HASH", "PREFIX", "1", def.Prefix, "SCHEMA"}
	for i := range def.Fields {
		args = append(args, fieldArgs(&def.Fields[i])...)
	}
	return args, nil
}

func fieldArgs(f *db.IndexField) []string {
	switch f.Kind {
	case db.FieldTag:
		if f.CaseSensitive {
			return []string{f.Name, "TAG", "CASESENSITIVE"}
		}
		return []string{f.Name, "TAG"}
	case db.FieldNumeric:
		return []string{f.Name, "NUMERIC"}
	default:
		attrs := []string{
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(f.Dim),
			"DISTANCE_METRIC", string(f.Metric),
		}
		if f.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.M))
		}
		if f.EFConstruction > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.EFConstruction))
		}
		return append([]string{f.Name, "VECTOR", "HNSW", strconv.Itoa(len(attrs))}, attrs...)
	}
}

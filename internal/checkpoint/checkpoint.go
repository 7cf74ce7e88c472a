// Package checkpoint persists graph snapshots and block lists between
// pipeline stages in a LevelDB database.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/retrogolib/log"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	graphPrefix  = "graph/"
	blocksPrefix = "blocks/"
)

var (
	ErrNotFound     = errors.New("checkpoint not found")
	ErrInvalidStage = errors.New("invalid stage name")
)

// Store is a checkpoint database. Each stage holds at most one graph and
// one block list.
type Store struct {
	logger *log.Logger
	db     *leveldb.DB
}

// Open opens or creates the database at the given path. An empty path
// opens an in-memory database.
func Open(logger *log.Logger, path string) (*Store, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database '%s': %w", path, err)
	}

	return &Store{
		logger: logger,
		db:     db,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing checkpoint database: %w", err)
	}
	return nil
}

// SaveGraph stores the JSON snapshot of the graph for a stage.
func (s *Store) SaveGraph(stage string, g *graph.Graph) error {
	key, value, err := graphRecord(stage, g)
	if err != nil {
		return err
	}
	if err := s.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("storing graph of stage '%s': %w", stage, err)
	}

	s.logger.Debug("Graph checkpoint saved",
		log.String("stage", stage),
		log.Int("nodes", g.NodeCount()),
		log.Int("edges", g.EdgeCount()))
	return nil
}

// LoadGraph restores the graph of a stage.
func (s *Store) LoadGraph(stage string) (*graph.Graph, error) {
	data, err := s.get(graphPrefix, stage)
	if err != nil {
		return nil, err
	}
	g, err := graph.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decoding graph of stage '%s': %w", stage, err)
	}
	return g, nil
}

// SaveBlocks stores a block list for a stage.
func (s *Store) SaveBlocks(stage string, blocks []block.Block) error {
	key, value, err := blocksRecord(stage, blocks)
	if err != nil {
		return err
	}
	if err := s.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("storing blocks of stage '%s': %w", stage, err)
	}

	s.logger.Debug("Block checkpoint saved",
		log.String("stage", stage),
		log.Int("blocks", len(blocks)))
	return nil
}

// LoadBlocks restores the block list of a stage.
func (s *Store) LoadBlocks(stage string) ([]block.Block, error) {
	data, err := s.get(blocksPrefix, stage)
	if err != nil {
		return nil, err
	}
	var blocks []block.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("decoding blocks of stage '%s': %w", stage, err)
	}
	return blocks, nil
}

// Save stores the graph and the blocks of a store atomically.
func (s *Store) Save(stage string, g *graph.Graph, blocks block.Reader) error {
	graphKey, graphValue, err := graphRecord(stage, g)
	if err != nil {
		return err
	}
	blocksKey, blocksValue, err := blocksRecord(stage, blocks.AllBlocks())
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(graphKey, graphValue)
	batch.Put(blocksKey, blocksValue)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("storing checkpoint of stage '%s': %w", stage, err)
	}

	s.logger.Info("Checkpoint saved",
		log.String("stage", stage),
		log.Int("nodes", g.NodeCount()),
		log.Int("blocks", blocks.Len()))
	return nil
}

// Delete removes graph and blocks of a stage.
func (s *Store) Delete(stage string) error {
	batch := new(leveldb.Batch)
	batch.Delete([]byte(graphPrefix + stage))
	batch.Delete([]byte(blocksPrefix + stage))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("deleting checkpoint of stage '%s': %w", stage, err)
	}
	return nil
}

// Stages returns the sorted names of all stages that hold a graph or blocks.
func (s *Store) Stages() ([]string, error) {
	var stages []string
	for _, prefix := range []string{graphPrefix, blocksPrefix} {
		iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			stage := strings.TrimPrefix(string(iter.Key()), prefix)
			if !slices.Contains(stages, stage) {
				stages = append(stages, stage)
			}
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("listing stages: %w", err)
		}
	}
	slices.Sort(stages)
	return stages, nil
}

func (s *Store) get(prefix, stage string) ([]byte, error) {
	data, err := s.db.Get([]byte(prefix+stage), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s%s", ErrNotFound, prefix, stage)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s%s: %w", prefix, stage, err)
	}
	return data, nil
}

func graphRecord(stage string, g *graph.Graph) ([]byte, []byte, error) {
	if err := checkStage(stage); err != nil {
		return nil, nil, err
	}
	value, err := g.MarshalJSON()
	if err != nil {
		return nil, nil, fmt.Errorf("encoding graph of stage '%s': %w", stage, err)
	}
	return []byte(graphPrefix + stage), value, nil
}

func blocksRecord(stage string, blocks []block.Block) ([]byte, []byte, error) {
	if err := checkStage(stage); err != nil {
		return nil, nil, err
	}
	value, err := json.Marshal(blocks)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding blocks of stage '%s': %w", stage, err)
	}
	return []byte(blocksPrefix + stage), value, nil
}

func checkStage(stage string) error {
	if stage == "" || strings.Contains(stage, "/") {
		return fmt.Errorf("%w '%s'", ErrInvalidStage, stage)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"time"

	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
	"github.com/runrelay/runrelay/pkg/tools/await"
)

// NewFileStorage keeps a model's data mirrored in a JSON file: the
// file seeds the model on start, then the model is flushed on every
// interval tick until ctx is done.
func NewFileStorage[T Indexed](
	fileName string,
	interval time.Duration,
	model Model[T],
	log logger.Logger,
) *fileStorage[T] {
	return &fileStorage[T]{
		fileName: fileName,
		model:    model,
		interval: interval,
		log:      log.With("file_storage"),
	}
}

type fileStorage[T Indexed] struct {
	fileName string
	model    Model[T]
	interval time.Duration
	log      logger.Logger
}

func (s *fileStorage[T]) Run(ctx context.Context) error {
	data := s.load()
	if data != nil {
		s.model.SetData(data)
	}

	tick := await.Tick(s.interval)
	for tick.Await(ctx) {
		s.save()
	}

	// final flush so a graceful shutdown loses nothing
	s.save()
	return nil
}

func (s *fileStorage[T]) save() {
	data := s.model.GetData()
	if data == nil {
		return
	}

	bytes, err := json.Marshal(data)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "marshal data"))
		return
	}

	err = os.WriteFile(s.fileName, bytes, fs.ModePerm)
	if err != nil {
		s.log.Warn(errors.WrapFailf(err, "write %s", s.fileName))
	}
}

func (s *fileStorage[T]) load() map[string]T {
	bytes, err := os.ReadFile(s.fileName)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.log.Warn(errors.WrapFailf(err, "read %s", s.fileName))
		return nil
	}

	var data map[string]T
	err = json.Unmarshal(bytes, &data)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "unmarshal data"))
		return nil
	}
	return data
}

package runs

import (
	"context"
	"time"

	"github.com/runrelay/runrelay/internal/repo"
	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
)

const defaultDrainCeiling = 60 * time.Second

var (
	ErrNotFound   = errors.Error("run not found")
	ErrBadMachine = errors.Error("unknown machine preset")
	ErrBadRetry   = errors.Error("oom retry machine is not larger")
	ErrBadState   = errors.Error("run is not in a valid state for this transition")
)

type Config struct {
	DrainCeiling time.Duration `yaml:"drain_ceiling"`
}

func New(
	ctx context.Context,
	log logger.Logger,
	cfg Config,
	db repo.Config,
	src repo.DataSource,
	streams gate,
) (API, error) {
	runsRepo, err := repo.New[Run](ctx, log, db, src)
	if err != nil {
		return nil, errors.WrapFail(err, "init runs repo")
	}

	ceiling := cfg.DrainCeiling
	if ceiling <= 0 {
		ceiling = defaultDrainCeiling
	}

	return &repoAPI{
		repo:    runsRepo,
		streams: streams,
		ceiling: ceiling,
		log:     log.With("runs"),
	}, nil
}

type repoAPI struct {
	repo    repo.Repo[Run]
	streams gate
	ceiling time.Duration
	log     logger.Logger
}

func (r *repoAPI) Create(ctx context.Context, task, machine, oomRetryMachine string) (string, error) {
	if machine == "" {
		machine = DefaultMachine
	}

	preset, ok := PresetByName(machine)
	if !ok {
		return "", ErrBadMachine
	}

	if oomRetryMachine != "" {
		retry, ok := PresetByName(oomRetryMachine)
		if !ok {
			return "", ErrBadMachine
		}
		if !retry.Larger(preset) {
			return "", ErrBadRetry
		}
	}

	return r.repo.Insert(ctx, Run{
		Task:            task,
		Machine:         machine,
		Attempt:         1,
		OOMRetryMachine: oomRetryMachine,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	})
}

func (r *repoAPI) Find(ctx context.Context, id string) (*Run, error) {
	found, err := r.repo.Select(ctx, repo.ByID(id))
	if err != nil {
		return nil, errors.WrapFail(err, "select run by id")
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}

	run := found[0]
	run.ID = id
	return &run, nil
}

func (r *repoAPI) Start(ctx context.Context, id string) error {
	updated, err := r.repo.Update(
		ctx,
		func(run *Run) {
			run.Status = StatusExecuting
			run.StartedAt = time.Now().UTC()
		},
		repo.ByID(id),
		repo.Where(func(run Run) bool { return run.Status == StatusPending }),
	)
	if err != nil {
		return errors.WrapFail(err, "mark run executing")
	}
	if updated == 0 {
		return ErrBadState
	}
	return nil
}

func (r *repoAPI) Finish(ctx context.Context, id string, failure *Failure) (*Run, error) {
	run, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusExecuting {
		return nil, ErrBadState
	}

	if retry, ok := r.oomRetry(run, failure); ok {
		err = r.requeue(ctx, retry)
		if err != nil {
			return nil, err
		}
		return retry, nil
	}

	// claim the transition with a compare-and-set, so concurrent
	// finish requests cannot both pass the gate
	updated, err := r.repo.Update(
		ctx,
		func(run *Run) { run.Status = StatusWaitingForStreams },
		repo.ByID(id),
		repo.Where(func(run Run) bool { return run.Status == StatusExecuting }),
	)
	if err != nil {
		return nil, errors.WrapFail(err, "mark run waiting for streams")
	}
	if updated == 0 {
		return nil, ErrBadState
	}

	if !r.streams.WaitDrained(ctx, id, r.ceiling) {
		r.log.Warnf("run %s finished with undrained streams", id)
	}
	r.streams.DropRun(ctx, id)

	run.Status = StatusCompleted
	if failure != nil {
		run.Status = StatusFailed
		if failure.Crash {
			run.Status = StatusCrashed
		}
		run.ErrorCode = failure.Code
	}
	run.FinishedAt = time.Now().UTC()

	_, err = r.repo.Update(
		ctx,
		func(stored *Run) {
			stored.Status = run.Status
			stored.ErrorCode = run.ErrorCode
			stored.FinishedAt = run.FinishedAt
		},
		repo.ByID(id),
	)
	if err != nil {
		return nil, errors.WrapFail(err, "store terminal run state")
	}
	return run, nil
}

func (r *repoAPI) Close(ctx context.Context) error {
	return r.repo.Close(ctx)
}

// oomRetry decides whether a failed run gets one more attempt on its
// configured larger preset.
func (r *repoAPI) oomRetry(run *Run, failure *Failure) (*Run, bool) {
	if failure == nil || failure.Code != ErrorCodeOOMKilled {
		return nil, false
	}
	if run.OOMRetryMachine == "" || run.Attempt > 1 {
		return nil, false
	}

	retry := *run
	retry.Machine = run.OOMRetryMachine
	retry.Attempt = run.Attempt + 1
	retry.Status = StatusPending
	retry.ErrorCode = ""
	return &retry, true
}

func (r *repoAPI) requeue(ctx context.Context, retry *Run) error {
	updated, err := r.repo.Update(
		ctx,
		func(stored *Run) {
			stored.Machine = retry.Machine
			stored.Attempt = retry.Attempt
			stored.Status = retry.Status
			stored.ErrorCode = ""
		},
		repo.ByID(retry.ID),
		repo.Where(func(run Run) bool { return run.Status == StatusExecuting }),
	)
	if err != nil {
		return errors.WrapFail(err, "requeue run")
	}
	if updated == 0 {
		return ErrBadState
	}

	// streams stay registered: the next attempt resumes the same keys
	r.log.Infof("run %s requeued on %s after oom kill", retry.ID, retry.Machine)
	return nil
}

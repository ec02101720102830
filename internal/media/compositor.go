// Package media downloads completed scene clips and composes the final
// promotional video: crossfade concatenation, optional narration and
// background-music tracks, and publication to durable storage.
package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
	"promoforge/internal/providers/mediagen"
	"promoforge/internal/providers/tts"
	"promoforge/internal/storage"
)

// SpeechSynthesizer is the narration dependency. Synthesis failures degrade
// the output instead of failing the job.
type SpeechSynthesizer interface {
	Available() bool
	Synthesize(ctx context.Context, req tts.SynthesizeRequest) ([]byte, error)
}

// Config tunes compositing behavior.
type Config struct {
	WorkRoot          string
	FadeSeconds       float64
	MusicPollInterval time.Duration
	MusicBudget       time.Duration
	HTTPClient        *http.Client
}

// Compositor owns steps download → concatenate → narration → music → mux →
// publish for one job. Temporary files live in a per-run directory removed
// on every exit path.
type Compositor struct {
	tasks  mediagen.TaskService
	speech SpeechSynthesizer
	store  storage.ObjectStore
	usage  domain.UsageRepository
	logger infra.Logger
	cfg    Config

	// run invokes ffmpeg; tests swap it out.
	run func(ctx context.Context, logger infra.Logger, args []string) error
}

// New constructs a Compositor. usage may be nil when cost accounting is not
// wired (tests).
func New(tasks mediagen.TaskService, speech SpeechSynthesizer, store storage.ObjectStore, usage domain.UsageRepository, logger infra.Logger, cfg Config) *Compositor {
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	if cfg.FadeSeconds <= 0 {
		cfg.FadeSeconds = 0.5
	}
	if cfg.MusicPollInterval <= 0 {
		cfg.MusicPollInterval = 5 * time.Second
	}
	if cfg.MusicBudget <= 0 {
		cfg.MusicBudget = 2 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Compositor{
		tasks:  tasks,
		speech: speech,
		store:  store,
		usage:  usage,
		logger: logger,
		cfg:    cfg,
		run:    runFFmpeg,
	}
}

// Compose runs the full compositing state machine and returns the published
// artifact URL. Callers invoke it only once every scene succeeded; any error
// is fatal to the job.
func (c *Compositor) Compose(ctx context.Context, job *domain.Job, scenes []domain.Scene) (string, error) {
	if len(scenes) == 0 {
		return "", domain.ErrNoScenes
	}

	workDir, err := os.MkdirTemp(c.cfg.WorkRoot, "promo-"+job.ID+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("compositor: cleanup failed")
		}
	}()

	ordered := make([]domain.Scene, len(scenes))
	copy(ordered, scenes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	clipPaths, err := c.downloadScenes(ctx, workDir, ordered)
	if err != nil {
		return "", err
	}

	videoPath, err := c.concatenate(ctx, workDir, ordered, clipPaths, c.fadeFor(job))
	if err != nil {
		return "", err
	}

	narrationPath := c.narration(ctx, workDir, job, ordered)
	musicPath := c.music(ctx, workDir, job, ordered)

	finalPath := videoPath
	if narrationPath != "" || musicPath != "" {
		finalPath = filepath.Join(workDir, "final.mp4")
		if err := c.run(ctx, c.logger, buildMuxArgs(videoPath, narrationPath, musicPath, finalPath)); err != nil {
			return "", fmt.Errorf("mux audio: %w", err)
		}
	}

	key := fmt.Sprintf("generated/videos/%s/promo.mp4", job.ID)
	url, err := c.store.PutFile(ctx, key, finalPath, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return url, nil
}

// downloadScenes fetches every clip concurrently; any failure aborts the
// whole composite so no partial video is ever produced.
func (c *Compositor) downloadScenes(ctx context.Context, workDir string, scenes []domain.Scene) ([]string, error) {
	paths := make([]string, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, scene := range scenes {
		i, scene := i, scene
		paths[i] = filepath.Join(workDir, fmt.Sprintf("scene_%03d.mp4", scene.Index))
		g.Go(func() error {
			if scene.VideoURL == "" {
				return fmt.Errorf("scene %d has no video url", scene.Index)
			}
			return downloadFile(gctx, c.cfg.HTTPClient, scene.VideoURL, paths[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("download scene videos: %w", err)
	}
	return paths, nil
}

func (c *Compositor) concatenate(ctx context.Context, workDir string, scenes []domain.Scene, clipPaths []string, fade float64) (string, error) {
	outPath := filepath.Join(workDir, "concat.mp4")
	if len(clipPaths) == 1 {
		if err := c.run(ctx, c.logger, buildCopyArgs(clipPaths[0], outPath)); err != nil {
			return "", fmt.Errorf("copy single clip: %w", err)
		}
		return outPath, nil
	}

	durations := make([]float64, len(scenes))
	for i, s := range scenes {
		durations[i] = s.DurationSeconds
	}
	if err := c.run(ctx, c.logger, buildXfadeArgs(clipPaths, durations, fade, outPath)); err != nil {
		return "", fmt.Errorf("concatenate clips: %w", err)
	}
	return outPath, nil
}

// fadeFor picks the crossfade requested on the job, falling back to the
// process-wide default when the job does not set one.
func (c *Compositor) fadeFor(job *domain.Job) float64 {
	if job.Config.FadeSeconds > 0 {
		return job.Config.FadeSeconds
	}
	return c.cfg.FadeSeconds
}

// narration synthesizes the voice track. Returns the local path, or "" when
// narration is unavailable or failed; both degrade the output silently.
func (c *Compositor) narration(ctx context.Context, workDir string, job *domain.Job, scenes []domain.Scene) string {
	text := narrationText(job, scenes)
	if text == "" || c.speech == nil || !c.speech.Available() {
		return ""
	}
	audio, err := c.speech.Synthesize(ctx, tts.SynthesizeRequest{
		Text:     text,
		Language: job.Config.Language,
		Voice:    job.Config.VoiceID,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("compositor: narration synthesis failed, continuing without")
		return ""
	}
	path := filepath.Join(workDir, "narration.mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("compositor: narration write failed, continuing without")
		return ""
	}
	return path
}

// music generates a background track sized to the composed video. Timeouts
// and provider failures are non-fatal.
func (c *Compositor) music(ctx context.Context, workDir string, job *domain.Job, scenes []domain.Scene) string {
	if !job.Config.MusicEnabled {
		return ""
	}
	prompt := musicPrompt(job)
	taskID, err := c.tasks.SubmitMusicTask(ctx, mediagen.MusicTaskRequest{
		Prompt:          prompt,
		DurationSeconds: composedDuration(scenes, c.fadeFor(job)),
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("compositor: music submission failed, continuing without")
		return ""
	}

	url, err := c.waitForMusic(ctx, job.ID, taskID)
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Str("task_id", taskID).Msg("compositor: music generation failed, continuing without")
		return ""
	}

	path := filepath.Join(workDir, "music.mp3")
	if err := downloadFile(ctx, c.cfg.HTTPClient, url, path); err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("compositor: music download failed, continuing without")
		return ""
	}
	return path
}

// waitForMusic polls the music task on a fixed interval within its own
// budget.
func (c *Compositor) waitForMusic(ctx context.Context, jobID, taskID string) (string, error) {
	deadline := time.NewTimer(c.cfg.MusicBudget)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.MusicPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("music generation timed out after %s", c.cfg.MusicBudget)
		case <-ticker.C:
			result, err := c.tasks.TaskStatus(ctx, taskID)
			if err != nil {
				c.logger.Debug().Err(err).Str("task_id", taskID).Msg("compositor: music poll error")
				continue
			}
			switch result.State {
			case mediagen.TaskStateSuccess:
				c.recordMusicCost(ctx, jobID, taskID, result.Cost)
				return result.ResultURL, nil
			case mediagen.TaskStateFailed:
				c.recordMusicCost(ctx, jobID, taskID, result.Cost)
				return "", fmt.Errorf("music generation failed: %s", result.Error)
			}
		}
	}
}

// recordMusicCost stores sunk provider cost even when the track is unusable.
// The usage repository ignores duplicate task ids.
func (c *Compositor) recordMusicCost(ctx context.Context, jobID, taskID string, cost float64) {
	if c.usage == nil || cost == 0 {
		return
	}
	if err := c.usage.Record(ctx, domain.UsageRecord{
		TaskID: taskID,
		JobID:  jobID,
		Kind:   domain.UsageKindMusic,
		Cost:   cost,
	}); err != nil {
		c.logger.Warn().Err(err).Str("task_id", taskID).Msg("compositor: usage record failed")
	}
}

// narrationText returns the custom script when supplied, otherwise the
// scene descriptions joined in index order.
func narrationText(job *domain.Job, scenes []domain.Scene) string {
	if custom := strings.TrimSpace(job.Config.Narration); custom != "" {
		return custom
	}
	var parts []string
	for _, s := range scenes {
		if p := strings.TrimSpace(s.Prompt); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func musicPrompt(job *domain.Job) string {
	style := strings.TrimSpace(job.Config.MusicStyle)
	if style == "" {
		style = "upbeat"
	}
	return style + " instrumental background music"
}

// composedDuration is the length of the concatenated video: scene durations
// minus the overlap consumed by each crossfade.
func composedDuration(scenes []domain.Scene, fade float64) float64 {
	var total float64
	for _, s := range scenes {
		total += s.DurationSeconds
	}
	if n := len(scenes); n > 1 {
		total -= float64(n-1) * fade
	}
	return total
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/intake"
	"github.com/spigell/cv-screener/internal/jobs"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/scoring"
	"github.com/spigell/cv-screener/internal/screening"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	archiveName    = "cv_archive.zip"
	extractDirName = "extracted"
	debugLimit     = 50
)

type jobView struct {
	ID             string     `json:"id"`
	Status         jobs.State `json:"status"`
	Description    string     `json:"description"`
	MustHaves      []string   `json:"must_haves"`
	TotalFiles     int        `json:"total_files"`
	ProcessedFiles int        `json:"processed_files"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Server) uploadZip(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	file, err := c.FormFile("zip_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "ZIP file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No ZIP file uploaded"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".zip") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be a ZIP archive"})
		return
	}

	description := c.PostForm("description")
	mustHaves := scoring.ParseMustHaves(c.PostForm("must_haves"))

	job := s.registry.Create(description, mustHaves)
	log := logger.WithJob(s.logger, job.ID)

	jobDir := filepath.Join(s.config.UploadDir, job.ID)
	zipPath := filepath.Join(jobDir, archiveName)

	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		log.Error("creating job directory", zap.Error(err))
		s.abandon(job.ID, jobDir, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	if err := c.SaveUploadedFile(file, zipPath); err != nil {
		log.Error("saving uploaded archive", zap.Error(err))
		s.abandon(job.ID, jobDir, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	docs, err := intake.ExtractAndFind(zipPath, filepath.Join(jobDir, extractDirName), s.config.Extensions)
	if err != nil {
		log.Warn("rejecting uploaded archive", zap.Error(err))
		s.abandon(job.ID, jobDir, err)

		if errors.Is(err, intake.ErrNoDocuments) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No CV files found in ZIP"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid ZIP archive: %v", err)})
		return
	}

	if err := s.registry.SetTotal(job.ID, len(docs)); err != nil {
		log.Error("recording document count", zap.Error(err))
		s.abandon(job.ID, jobDir, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info("found documents in archive", zap.Int("count", len(docs)))

	s.wg.Add(1)
	go s.process(job.ID, jobDir, screening.Batch{
		JobDescription: description,
		MustHaves:      mustHaves,
		Documents:      docs,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":         "Started processing ZIP file",
		"job_id":          job.ID,
		"total_cvs_found": len(docs),
	})
}

// process scores the batch in the background. The job directory is removed
// whatever the outcome.
func (s *Server) process(id, jobDir string, batch screening.Batch) {
	defer s.wg.Done()

	log := logger.WithJob(s.logger, id)
	defer s.cleanup(log, jobDir)

	candidates, _, err := s.pipeline.Run(s.ctx, batch, func(processed, _ int) {
		_ = s.registry.Progress(id, processed)
	})
	if err != nil {
		log.Error("screening job failed", zap.Error(err))
		_ = s.registry.Fail(id, err)
		return
	}

	_ = s.registry.Complete(id, candidates)
	log.Info("screening job completed", zap.Int("candidates", candidates.Len()))
}

func (s *Server) abandon(id, jobDir string, err error) {
	_ = s.registry.Fail(id, err)
	s.cleanup(logger.WithJob(s.logger, id), jobDir)
}

func (s *Server) cleanup(log *zap.Logger, jobDir string) {
	freed, err := intake.Cleanup(jobDir)
	if err != nil {
		log.Warn("cleaning up job directory", zap.String("dir", jobDir), zap.Error(err))
		return
	}
	log.Info("cleaned up job directory",
		zap.String("dir", jobDir),
		zap.String("freed", utils.Megabytes(freed)),
	)
}

func (s *Server) shortlist(c *gin.Context) {
	job, err := s.registry.Get(c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "Unknown",
			"progress": "0/0",
			"top_5":    []*screening.Candidate{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   job.State,
		"progress": fmt.Sprintf("%d/%d", job.Processed, job.Total),
		"top_5":    nonNil(job.Candidates.Shortlist(s.config.ShortlistSize)),
	})
}

func (s *Server) jobStatus(c *gin.Context) {
	status, err := s.registry.Status(c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) debugJob(c *gin.Context) {
	job, err := s.registry.Get(c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job": jobView{
			ID:             job.ID,
			Status:         job.State,
			Description:    job.JobDescription,
			MustHaves:      job.MustHaves,
			TotalFiles:     job.Total,
			ProcessedFiles: job.Processed,
			Error:          job.Error,
			CreatedAt:      job.CreatedAt,
		},
		"total_candidates": job.Candidates.Len(),
		"candidates":       nonNil(job.Candidates.Top(debugLimit)),
		"top_5":            nonNil(job.Candidates.Top(screening.DefaultShortlistSize)),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.config.Version,
		"service": "cv-screener",
	})
}

func nonNil(c *screening.Candidates) []*screening.Candidate {
	if c.Items == nil {
		return []*screening.Candidate{}
	}
	return c.Items
}

// Package api contains all endpoints available
package api

import (
	"time"

	"filedrop/metadata-api/db"
	"filedrop/metadata-api/internal/registry"
	"filedrop/metadata-api/internal/storage"
	"filedrop/metadata-api/pkg/middleware"

	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

type API struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Registry *registry.Registry
	Blobs    storage.BlobStore
}

func NewRouter() (*API, error) {
	a := &API{}

	database, err := db.New()
	if err != nil {
		return nil, err
	}
	a.DB = database
	a.Registry = registry.NewFromConfig(database)

	makeLogger()

	blobs, err := storage.New()
	if err != nil {
		return nil, err
	}
	a.Blobs = blobs

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	a.Router.MaxMultipartMemory = 5 << 20

	maxUploadSize := viper.GetInt64("upload.max_size")

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 			-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)
	}

	files := main.Group("/files")
	{
		// POST /api/files			-> Registers an uploaded file
		files.POST("", middleware.BodySizeLimiter(maxUploadSize), a.FileUpload)

		// GET /api/files/:id			-> Returns a file's metadata
		files.GET("/:id", a.FileFetch)

		// POST /api/files/:id/download		-> Records a download event
		files.POST("/:id/download", a.FileDownload)

		// POST /api/files/:id/view		-> Records a view event
		files.POST("/:id/view", a.FileView)

		// DELETE /api/files/:id		-> Soft-deletes a file
		files.DELETE("/:id", a.FileDelete)

		// POST /api/files/:id/tags		-> Attaches tags to a file
		files.POST("/:id/tags", middleware.BodySizeLimiter(1<<20), a.FileTagsAttach)

		// DELETE /api/files/:id/tags/:tag	-> Detaches a single tag
		files.DELETE("/:id/tags/:tag", a.FileTagsDetach)
	}

	return a, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	if lvl, err := zapcore.ParseLevel(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

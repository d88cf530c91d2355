package main

import (
	"fmt"
	"time"

	"github.com/FrezCirno/CloudStorageSystem/api"
	"github.com/FrezCirno/CloudStorageSystem/config"
	"github.com/FrezCirno/CloudStorageSystem/internal/service"
	"github.com/FrezCirno/CloudStorageSystem/internal/transfer"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	a, err := api.NewRouter()
	if err != nil {
		panic(err)
	}

	worker := transfer.NewWorker(a.DB, a.S3)
	if err := worker.Start(); err != nil {
		panic(err)
	}
	defer worker.Shutdown()

	if config.SweepStagingOnBoot() {
		service.SweepStagingOnce(viper.GetString("storage.temp_dir"), a.Store, a.DB)
	}

	service.StagingCleanup(time.Hour, viper.GetString("storage.temp_dir"), a.Store, a.DB)

	zap.L().Info("Server starting", zap.Int("port", viper.GetInt("host.port")))

	err = a.Router.Run(fmt.Sprintf(":%d", viper.GetInt("host.port")))
	if err != nil {
		panic(err)
	}
}

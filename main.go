package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetgrid/routing/config"
	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var (
	// 配置信息
	mongoURI        = flag.String("mongo_uri", "", "mongo db uri")
	topologyPathStr = flag.String("topology", "", "topology file or database and collection, can be empty [format: {fspath} or {db}.{col}]")
	cacheDir        = flag.String("cache", "", "input cache dir path (empty means disable cache)")
	configPath      = flag.String("config", "", "yaml config file path (empty means defaults)")
	grpcEndpoint    = flag.String("listen", "localhost:52101", "connect listening address")
	logLevel        = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "localhost:52102", "pprof listening address")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	flag.Parse()
	if level, ok := LOG_LEVELS[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("invalid config: %s", err)
	}
	topologyPath, err := NewPath(*topologyPathStr)
	if err != nil {
		logrus.Fatalf("invalid topology path: %s", err)
	}
	// 启动调度服务
	server := NewDispatchServer(
		*mongoURI,
		topologyPath,
		*cacheDir,
		cfg,
	)

	if *pprofAddr != "" {
		// 启动pprof与调试接口
		startHTTPDebugger(*pprofAddr, server)
	}

	if *benchmark {
		// 性能测试
		runBenchmark(server)
		return
	}

	// 启动tcp监听和初始化connect服务端
	mux := http.NewServeMux()
	mux.Handle(NewDispatchServiceHandler(server))

	addr := *grpcEndpoint
	// 使用HTTP/2 w.o. TLS
	s := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	// 优雅退出
	// 创建监听退出chan
	signalCh := make(chan os.Signal, 1)
	//监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping...")
		go func() {
			<-signalCh
			os.Exit(1) // 强制结束
		}()
		// 暂停接收新的规划请求
		server.Suspend()
		// 退出connect-go
		s.Close()
		os.Exit(0)
	}()

	log.Infof("server listening at %v", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to serve: %v", err)
	}
	time.Sleep(1 * time.Second) // 延迟等待"优雅退出"
	log.Info("dispatch closes")
}

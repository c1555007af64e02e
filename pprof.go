package main

import (
	"net/http"
	"net/http/pprof"
)

// 调试接口：
// /debug/pprof/ 进入pprof实时分析页面
// /debug/graph.geojson 导出当前编译图，可直接拖入geojson.io查看
func debugHandler(s *DispatchServer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
	mux.HandleFunc("/debug/graph.geojson", func(w http.ResponseWriter, r *http.Request) {
		d, err := s.current()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		data, err := d.Router().Graph().GeoJSON().MarshalJSON()
		if err != nil {
			log.Errorf("marshal graph geojson: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := w.Write(data); err != nil {
			log.Warnf("write graph geojson: %v", err)
		}
	})
	return mux
}

func startHTTPDebugger(addr string, s *DispatchServer) {
	server := &http.Server{Addr: addr, Handler: debugHandler(s)}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("debug server stopped: %v", err)
		}
	}()
}

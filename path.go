package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// 拓扑来源：本地文件或mongo集合
type Path struct {
	File string
	DB   string
	Coll string
}

func NewPath(filePathOrColl string) (*Path, error) {
	// 检查filePathOrColl是否作为文件存在
	if _, err := os.Stat(filePathOrColl); err == nil {
		return &Path{
			File: filePathOrColl,
		}, nil
	}
	dbDotColl := strings.TrimSpace(filePathOrColl)
	if dbDotColl == "" {
		return nil, nil
	}
	if ext := filepath.Ext(dbDotColl); ext == ".yaml" || ext == ".yml" || ext == ".json" {
		return nil, fmt.Errorf("topology file not found: %s", dbDotColl)
	}
	splitted := strings.Split(dbDotColl, ".")
	if len(splitted) != 2 || splitted[0] == "" || splitted[1] == "" {
		return nil, fmt.Errorf("dbDotColl is invalid: %s", dbDotColl)
	}
	return &Path{
		DB:   splitted[0],
		Coll: splitted[1],
	}, nil
}

func (p *Path) IsFile() bool {
	return p.File != ""
}

// 缓存文件名（不含扩展名）
func (p *Path) GetCacheKey() string {
	return p.DB + "." + p.Coll
}

func (p *Path) String() string {
	if p.IsFile() {
		return p.File
	}
	return p.GetCacheKey()
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"mpbf-bottleneck/internal/models"

	"gopkg.in/yaml.v3"
)

// TargetsSeed 目标种子文件格式
//
//	targets:
//	  - section_id: S1
//	    stage: extruding
//	    shift: day
//	    machine_id: EXT-01   # 可省略
//	    target_rate: 100
//	    min_efficiency: 70
//	    max_downtime: 30
type TargetsSeed struct {
	Targets []models.TargetInput `yaml:"targets"`
}

// LoadTargets 读取目标种子文件；path 为空时返回 nil
func LoadTargets(path string) ([]models.TargetInput, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargets(data)
}

// ParseTargets 解析 YAML 格式的目标列表（未知字段视为错误，空文件返回 nil）
func ParseTargets(data []byte) ([]models.TargetInput, error) {
	var seed TargetsSeed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}
	return seed.Targets, nil
}

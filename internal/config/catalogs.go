package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// CatalogDefinition：一份星表的导入描述（望远镜、频段、列名映射）
type CatalogDefinition struct {
	// Name：望远镜名称，导入时按名称加载或创建
	Name         string  `json:"name" validate:"required"`
	CatalogName  string  `json:"catalog_name"`
	FrequencyMin float64 `json:"frequency_min" validate:"gte=0"`
	FrequencyMax float64 `json:"frequency_max" validate:"gtefield=FrequencyMin"`
	// Files：CatalogDir 内匹配的文件名模式（filepath.Match 语法）
	Files []string `json:"files" validate:"required,min=1,dive,required"`
	// SourceColumn：源名称所在列
	SourceColumn string `json:"source" validate:"required"`
	RAColumn     string `json:"ra_column"`
	DecColumn    string `json:"dec_column"`
	// Bands：窄带中心频率（MHz）
	Bands    []float64 `json:"bands" validate:"dive,gt=0"`
	Wideband bool      `json:"wideband"`
	// FOV：该星表源的视场（度），写入 sources.fov
	FOV            float64           `json:"fov" validate:"gte=0"`
	HeadingAlias   map[string]string `json:"heading_alias"`
	HeadingMissing []string          `json:"heading_missing"`
}

// Matches：文件名是否属于该星表
func (d CatalogDefinition) Matches(path string) bool {
	base := filepath.Base(path)
	for _, p := range d.Files {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

type catalogFile struct {
	Catalogs []CatalogDefinition `json:"catalogs" validate:"dive"`
}

// LoadCatalogs：读取 JSON 星表定义文件；RA/Dec 列名缺省为 RAJ2000/DEJ2000
func LoadCatalogs(path string) ([]CatalogDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog config: %w", err)
	}
	return ParseCatalogs(b)
}

// ParseCatalogs：解析并校验星表定义
func ParseCatalogs(b []byte) ([]CatalogDefinition, error) {
	var f catalogFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("catalog config: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("catalog config: %w", err)
	}
	seen := make(map[string]bool, len(f.Catalogs))
	for i := range f.Catalogs {
		d := &f.Catalogs[i]
		if seen[d.Name] {
			return nil, fmt.Errorf("catalog config: duplicate telescope %q", d.Name)
		}
		seen[d.Name] = true
		if d.RAColumn == "" {
			d.RAColumn = "RAJ2000"
		}
		if d.DecColumn == "" {
			d.DecColumn = "DEJ2000"
		}
	}
	return f.Catalogs, nil
}

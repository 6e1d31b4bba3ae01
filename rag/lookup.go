package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// lookupEntry 查找表的一行：一个维度下的一个取值。
// 职位与年份按公司归属记录，公司行的 Company 为空.
type lookupEntry struct {
	ID        uint      `gorm:"primaryKey"`
	Dimension string    `gorm:"size:32;uniqueIndex:idx_dim_company_value;not null"`
	Company   string    `gorm:"size:256;uniqueIndex:idx_dim_company_value"`
	Value     string    `gorm:"size:256;uniqueIndex:idx_dim_company_value;not null"`
	Count     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (lookupEntry) TableName() string { return "lookup_entries" }

// 查找维度，对应摄取时关注的元数据字段.
const (
	dimCompany  = "company"
	dimPosition = "position"
	dimYear     = "year"
)

// LookupStore 维护摄取过的公司、职位、年份取值，
// 供前端下拉与过滤校验使用。底层是 SQLite 单文件库。
type LookupStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLookupStore 打开（必要时建表）查找库.
func NewLookupStore(path string, logger *zap.Logger) (*LookupStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open lookup store: %w", err)
	}
	if err := db.AutoMigrate(&lookupEntry{}); err != nil {
		return nil, fmt.Errorf("migrate lookup store: %w", err)
	}
	return &LookupStore{
		db:     db,
		logger: logger.With(zap.String("component", "lookup_store")),
	}, nil
}

// Record 从一批文档的元数据里提取维度取值并累加计数。
// 缺失或非字符串的字段直接跳过，摄取不因此失败.
func (s *LookupStore) Record(ctx context.Context, docs []types.Document) error {
	counts := make(map[[3]string]int64)
	for _, doc := range docs {
		company := stringField(doc.Metadata, dimCompany)
		if company != "" {
			counts[[3]string{dimCompany, "", company}]++
		}
		for _, dim := range []string{dimPosition, dimYear} {
			val := stringField(doc.Metadata, dim)
			if val == "" {
				continue
			}
			counts[[3]string{dim, company, val}]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, n := range counts {
			dim, company, val := key[0], key[1], key[2]
			entry := lookupEntry{Dimension: dim, Company: company, Value: val}
			err := tx.Where("dimension = ? AND company = ? AND value = ?", dim, company, val).
				FirstOrCreate(&entry).Error
			if err != nil {
				return fmt.Errorf("upsert lookup entry %s=%s: %w", dim, val, err)
			}
			err = tx.Model(&lookupEntry{}).
				Where("dimension = ? AND company = ? AND value = ?", dim, company, val).
				UpdateColumn("count", gorm.Expr("count + ?", n)).Error
			if err != nil {
				return fmt.Errorf("bump lookup count %s=%s: %w", dim, val, err)
			}
		}
		return nil
	})
}

// Companies 返回已知公司名（按出现次数降序）.
func (s *LookupStore) Companies(ctx context.Context) ([]string, error) {
	return s.values(ctx, dimCompany, "")
}

// Positions 返回某公司已知的职位；company 为空时跨公司汇总.
func (s *LookupStore) Positions(ctx context.Context, company string) ([]string, error) {
	return s.values(ctx, dimPosition, company)
}

// Years 返回某公司已知的评论年份；company 为空时跨公司汇总.
func (s *LookupStore) Years(ctx context.Context, company string) ([]string, error) {
	return s.values(ctx, dimYear, company)
}

func (s *LookupStore) values(ctx context.Context, dimension, company string) ([]string, error) {
	q := s.db.WithContext(ctx).
		Model(&lookupEntry{}).
		Where("dimension = ?", dimension)
	if company != "" {
		q = q.Where("company = ?", company)
	}

	var out []string
	err := q.Select("value").
		Group("value").
		Order("SUM(count) DESC, value ASC").
		Pluck("value", &out).Error
	if err != nil {
		return nil, fmt.Errorf("list %s values: %w", dimension, err)
	}
	return out, nil
}

// Close 关闭底层连接.
func (s *LookupStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// stringField 取元数据中的字符串字段；年份等数字值转成字符串.
func stringField(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return ""
	}
}

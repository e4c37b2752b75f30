package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Selection 字段集合（select / omit / 聚合字段），值为 true 表示选中
type Selection map[string]bool

// Fields 构造选中的字段集合
func Fields(names ...string) Selection {
	s := make(Selection, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

func (s Selection) enabled() []string {
	names := make([]string, 0, len(s))
	for name, on := range s {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Include 关联加载，值为 bool、IncludeArgs 或 JSON 对象
type Include map[string]interface{}

// IncludeArgs 关联加载参数
type IncludeArgs struct {
	Where   Where       `json:"where,omitempty"`
	OrderBy OrderByList `json:"orderBy,omitempty"`
	Include Include     `json:"include,omitempty"`
}

// CacheStrategy 结果缓存策略
type CacheStrategy struct {
	TTL time.Duration `json:"-"`
}

// MarshalJSON 以秒输出 ttl
func (c CacheStrategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{"ttl": c.TTL.Seconds()})
}

// UnmarshalJSON 解析 {"ttl": 秒}
func (c *CacheStrategy) UnmarshalJSON(data []byte) error {
	var raw struct {
		TTL float64 `json:"ttl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.TTL < 0 {
		return fmt.Errorf("cacheStrategy ttl must not be negative")
	}
	c.TTL = time.Duration(raw.TTL * float64(time.Second))
	return nil
}

// BatchPayload 批量操作影响的行数
type BatchPayload struct {
	Count int64 `json:"count"`
}

// Take 构造 take 参数
func Take(n int) *int { return &n }

// FindUniqueArgs 按唯一键查询
type FindUniqueArgs struct {
	Where         Where          `json:"where"`
	Select        Selection      `json:"select,omitempty"`
	Omit          Selection      `json:"omit,omitempty"`
	Include       Include        `json:"include,omitempty"`
	CacheStrategy *CacheStrategy `json:"cacheStrategy,omitempty"`
}

// FindManyArgs 列表查询；take 为负数时从游标向前取
type FindManyArgs struct {
	Where         Where          `json:"where,omitempty"`
	OrderBy       OrderByList    `json:"orderBy,omitempty"`
	Cursor        Where          `json:"cursor,omitempty"`
	Take          *int           `json:"take,omitempty"`
	Skip          int            `json:"skip,omitempty"`
	Distinct      []string       `json:"distinct,omitempty"`
	Select        Selection      `json:"select,omitempty"`
	Omit          Selection      `json:"omit,omitempty"`
	Include       Include        `json:"include,omitempty"`
	CacheStrategy *CacheStrategy `json:"cacheStrategy,omitempty"`
}

// FindFirstArgs 与 FindManyArgs 相同，只返回第一条
type FindFirstArgs = FindManyArgs

// CreateArgs 创建单条记录
type CreateArgs[T any] struct {
	Data    T         `json:"data"`
	Select  Selection `json:"select,omitempty"`
	Omit    Selection `json:"omit,omitempty"`
	Include Include   `json:"include,omitempty"`
}

// CreateManyArgs 批量创建
type CreateManyArgs[T any] struct {
	Data           []T  `json:"data"`
	SkipDuplicates bool `json:"skipDuplicates,omitempty"`
}

// CreateManyAndReturnArgs 批量创建并返回插入的记录
type CreateManyAndReturnArgs[T any] struct {
	Data           []T       `json:"data"`
	SkipDuplicates bool      `json:"skipDuplicates,omitempty"`
	Select         Selection `json:"select,omitempty"`
	Omit           Selection `json:"omit,omitempty"`
	Include        Include   `json:"include,omitempty"`
}

// UpdateArgs 按唯一键更新
type UpdateArgs struct {
	Where   Where     `json:"where"`
	Data    Data      `json:"data"`
	Select  Selection `json:"select,omitempty"`
	Omit    Selection `json:"omit,omitempty"`
	Include Include   `json:"include,omitempty"`
}

// UpdateManyArgs 批量更新
type UpdateManyArgs struct {
	Where Where `json:"where,omitempty"`
	Data  Data  `json:"data"`
	Limit *int  `json:"limit,omitempty"`
}

// UpdateManyAndReturnArgs 批量更新并返回更新后的记录
type UpdateManyAndReturnArgs struct {
	Where   Where     `json:"where,omitempty"`
	Data    Data      `json:"data"`
	Limit   *int      `json:"limit,omitempty"`
	Select  Selection `json:"select,omitempty"`
	Omit    Selection `json:"omit,omitempty"`
	Include Include   `json:"include,omitempty"`
}

// UpsertArgs 存在则更新，否则创建
type UpsertArgs[T any] struct {
	Where   Where     `json:"where"`
	Create  T         `json:"create"`
	Update  Data      `json:"update"`
	Select  Selection `json:"select,omitempty"`
	Omit    Selection `json:"omit,omitempty"`
	Include Include   `json:"include,omitempty"`
}

// DeleteArgs 按唯一键删除
type DeleteArgs struct {
	Where   Where     `json:"where"`
	Select  Selection `json:"select,omitempty"`
	Omit    Selection `json:"omit,omitempty"`
	Include Include   `json:"include,omitempty"`
}

// DeleteManyArgs 批量删除
type DeleteManyArgs struct {
	Where Where `json:"where,omitempty"`
	Limit *int  `json:"limit,omitempty"`
}

// CountArgs 计数
type CountArgs struct {
	Where         Where          `json:"where,omitempty"`
	OrderBy       OrderByList    `json:"orderBy,omitempty"`
	Cursor        Where          `json:"cursor,omitempty"`
	Take          *int           `json:"take,omitempty"`
	Skip          int            `json:"skip,omitempty"`
	CacheStrategy *CacheStrategy `json:"cacheStrategy,omitempty"`
}

// AggregateArgs 聚合统计
type AggregateArgs struct {
	Where   Where       `json:"where,omitempty"`
	OrderBy OrderByList `json:"orderBy,omitempty"`
	Cursor  Where       `json:"cursor,omitempty"`
	Take    *int        `json:"take,omitempty"`
	Skip    int         `json:"skip,omitempty"`
	Count   Selection   `json:"_count,omitempty"`
	Avg     Selection   `json:"_avg,omitempty"`
	Sum     Selection   `json:"_sum,omitempty"`
	Min     Selection   `json:"_min,omitempty"`
	Max     Selection   `json:"_max,omitempty"`
}

// GroupByArgs 分组聚合
type GroupByArgs struct {
	By      []string    `json:"by"`
	Where   Where       `json:"where,omitempty"`
	Having  Where       `json:"having,omitempty"`
	OrderBy OrderByList `json:"orderBy,omitempty"`
	Take    *int        `json:"take,omitempty"`
	Skip    int         `json:"skip,omitempty"`
	Count   Selection   `json:"_count,omitempty"`
	Avg     Selection   `json:"_avg,omitempty"`
	Sum     Selection   `json:"_sum,omitempty"`
	Min     Selection   `json:"_min,omitempty"`
	Max     Selection   `json:"_max,omitempty"`
}

package client

import (
	"context"
	"fmt"
	"reflect"

	"github.com/teakspice/shopdb/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Delegate 单个模型的数据访问入口
type Delegate[T any] struct {
	c    *Client
	info *ModelInfo
}

func newDelegate[T any](c *Client, name string) *Delegate[T] {
	info, ok := c.eng.reg.Model(name)
	if !ok {
		panic(fmt.Sprintf("client: model %s is not registered", name))
	}
	return &Delegate[T]{c: c, info: info}
}

// Model 模型名
func (d *Delegate[T]) Model() string {
	return d.info.Name
}

// Info 模型元数据
func (d *Delegate[T]) Info() *ModelInfo {
	return d.info
}

func (d *Delegate[T]) bind(c *Client) *Delegate[T] {
	return &Delegate[T]{c: c, info: d.info}
}

func (d *Delegate[T]) db(ctx context.Context) (*gorm.DB, error) {
	return d.c.conn(ctx, d.info.Name)
}

// sqlite 需在 db() 之后调用
func (d *Delegate[T]) sqlite() bool {
	return d.c.eng.driver == models.DriverSQLite
}

func (d *Delegate[T]) classify(err error) error {
	return d.c.eng.reg.classifyError(d.info.Name, err)
}

func (d *Delegate[T]) compileWhere(w Where) (clause.Expr, error) {
	expr, err := newWhereCompiler(d.c.eng.reg).compile(d.info, d.info.Table, w)
	if err != nil {
		return clause.Expr{}, err
	}
	return wrapExpr(expr), nil
}

func (d *Delegate[T]) projection(sel, omit Selection, inc Include, required ...string) (projection, error) {
	return buildProjection(d.info, d.c.eng.omit[d.info.Name], sel, omit, inc, required...)
}

func (d *Delegate[T]) requireUnique(w Where, operation string) error {
	if !d.info.coversUnique(w) {
		return validationf(d.info.Name, "%s requires a where that selects a unique constraint (%s)", operation, d.info.uniqueNames())
	}
	return nil
}

func (d *Delegate[T]) primaryKeyOf(ctx context.Context, row *T) interface{} {
	return fieldValue(ctx, d.info.PrimaryKey, reflect.ValueOf(row).Elem())
}

func (d *Delegate[T]) primaryWhere(ids ...interface{}) Where {
	if len(ids) == 1 {
		return Where{d.info.PrimaryKey.Name: ids[0]}
	}
	return Where{d.info.PrimaryKey.Name: In(ids...)}
}

// fieldValue 读取结构体字段值，空指针返回 nil
func fieldValue(ctx context.Context, f *FieldInfo, rv reflect.Value) interface{} {
	v := f.field.ReflectValueOf(ctx, rv)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch value := v.Interface().(type) {
	case models.Money:
		return value.Decimal
	default:
		return value
	}
}

// FindUnique 按唯一键查询，不存在时返回 nil
func (d *Delegate[T]) FindUnique(ctx context.Context, args FindUniqueArgs) (*T, error) {
	if err := d.requireUnique(args.Where, "findUnique"); err != nil {
		return nil, err
	}
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	return cachedResult(ctx, d.c, d.info.Name, "findUnique", args, args.CacheStrategy, func() (*T, error) {
		rows, err := d.findMany(ctx, readQuery{where: args.Where, take: Take(1), proj: proj})
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return &rows[0], nil
	})
}

// FindUniqueOrThrow 按唯一键查询，不存在时返回 P2025
func (d *Delegate[T]) FindUniqueOrThrow(ctx context.Context, args FindUniqueArgs) (*T, error) {
	row, err := d.FindUnique(ctx, args)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound(d.info.Name, "findUniqueOrThrow")
	}
	return row, nil
}

// FindFirst 返回第一条匹配记录，不存在时返回 nil
func (d *Delegate[T]) FindFirst(ctx context.Context, args FindFirstArgs) (*T, error) {
	take := 1
	if args.Take != nil && *args.Take < 0 {
		take = -1
	}
	args.Take = &take
	rows, err := d.FindMany(ctx, args)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// FindFirstOrThrow 返回第一条匹配记录，不存在时返回 P2025
func (d *Delegate[T]) FindFirstOrThrow(ctx context.Context, args FindFirstArgs) (*T, error) {
	row, err := d.FindFirst(ctx, args)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound(d.info.Name, "findFirstOrThrow")
	}
	return row, nil
}

// FindMany 列表查询
func (d *Delegate[T]) FindMany(ctx context.Context, args FindManyArgs) ([]T, error) {
	proj, err := d.projection(args.Select, args.Omit, args.Include, args.Distinct...)
	if err != nil {
		return nil, err
	}
	return cachedResult(ctx, d.c, d.info.Name, "findMany", args, args.CacheStrategy, func() ([]T, error) {
		return d.findMany(ctx, readQuery{
			where:    args.Where,
			orderBy:  args.OrderBy,
			cursor:   args.Cursor,
			take:     args.Take,
			skip:     args.Skip,
			distinct: args.Distinct,
			proj:     proj,
		})
	})
}

// Create 创建单条记录
func (d *Delegate[T]) Create(ctx context.Context, args CreateArgs[T]) (*T, error) {
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	var out *T
	err = d.c.atomic(ctx, func(ctx context.Context, tc *Client) error {
		td := d.bind(tc)
		row, err := td.insert(ctx, args.Data, false)
		if err != nil {
			return err
		}
		created, err := td.reload(ctx, proj, td.primaryKeyOf(ctx, row))
		if err != nil {
			return err
		}
		out = &created[0]
		tc.notifyMutation(ctx, d.info.Name, "create", 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// insert 插入一行；skipDuplicates 时冲突返回 nil
func (d *Delegate[T]) insert(ctx context.Context, data T, skipDuplicates bool) (*T, error) {
	db, err := d.db(ctx)
	if err != nil {
		return nil, err
	}
	row := data
	stmt := db.Omit(clause.Associations)
	if skipDuplicates {
		stmt = stmt.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := stmt.Create(&row)
	if res.Error != nil {
		return nil, d.classify(res.Error)
	}
	if skipDuplicates && res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

func (d *Delegate[T]) reload(ctx context.Context, proj projection, ids ...interface{}) ([]T, error) {
	rows, err := d.findMany(ctx, readQuery{
		where:   d.primaryWhere(ids...),
		orderBy: OrderByList{Asc(d.info.PrimaryKey.Name)},
		proj:    proj,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) != len(ids) {
		return nil, notFound(d.info.Name, "reload")
	}
	return rows, nil
}

// CreateMany 批量创建，返回插入行数
func (d *Delegate[T]) CreateMany(ctx context.Context, args CreateManyArgs[T]) (BatchPayload, error) {
	if len(args.Data) == 0 {
		return BatchPayload{}, nil
	}
	db, err := d.db(ctx)
	if err != nil {
		return BatchPayload{}, err
	}
	rows := append([]T(nil), args.Data...)
	stmt := db.Omit(clause.Associations)
	if args.SkipDuplicates {
		stmt = stmt.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := stmt.CreateInBatches(&rows, createBatchSize)
	if res.Error != nil {
		return BatchPayload{}, d.classify(res.Error)
	}
	d.c.notifyMutation(ctx, d.info.Name, "createMany", res.RowsAffected)
	return BatchPayload{Count: res.RowsAffected}, nil
}

const createBatchSize = 500

// CreateManyAndReturn 批量创建并返回实际插入的记录
func (d *Delegate[T]) CreateManyAndReturn(ctx context.Context, args CreateManyAndReturnArgs[T]) ([]T, error) {
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	if len(args.Data) == 0 {
		return []T{}, nil
	}
	var out []T
	err = d.c.atomic(ctx, func(ctx context.Context, tc *Client) error {
		td := d.bind(tc)
		ids := make([]interface{}, 0, len(args.Data))
		for i := range args.Data {
			row, err := td.insert(ctx, args.Data[i], args.SkipDuplicates)
			if err != nil {
				return err
			}
			if row != nil {
				ids = append(ids, td.primaryKeyOf(ctx, row))
			}
		}
		if len(ids) == 0 {
			out = []T{}
			return nil
		}
		rows, err := td.reload(ctx, proj, ids...)
		if err != nil {
			return err
		}
		out = rows
		tc.notifyMutation(ctx, d.info.Name, "createManyAndReturn", int64(len(ids)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lookupPrimaryKey 查找 where 命中的第一条记录主键
func (d *Delegate[T]) lookupPrimaryKey(ctx context.Context, w Where) (interface{}, bool, error) {
	db, err := d.db(ctx)
	if err != nil {
		return nil, false, err
	}
	expr, err := d.compileWhere(w)
	if err != nil {
		return nil, false, err
	}
	var rows []T
	if err := db.Model(new(T)).Select(d.info.PrimaryKey.Column).Where(expr).Limit(1).Find(&rows).Error; err != nil {
		return nil, false, d.classify(err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return d.primaryKeyOf(ctx, &rows[0]), true, nil
}

func (d *Delegate[T]) updateByPrimaryKey(ctx context.Context, updates map[string]interface{}, ids ...interface{}) (int64, error) {
	if len(updates) == 0 || len(ids) == 0 {
		return 0, nil
	}
	db, err := d.db(ctx)
	if err != nil {
		return 0, err
	}
	expr, err := d.compileWhere(d.primaryWhere(ids...))
	if err != nil {
		return 0, err
	}
	res := db.Model(new(T)).Where(expr).Updates(updates)
	if res.Error != nil {
		return 0, d.classify(res.Error)
	}
	return res.RowsAffected, nil
}

// Update 按唯一键更新，不存在时返回 P2025
func (d *Delegate[T]) Update(ctx context.Context, args UpdateArgs) (*T, error) {
	if err := d.requireUnique(args.Where, "update"); err != nil {
		return nil, err
	}
	updates, err := buildUpdates(d.info, args.Data)
	if err != nil {
		return nil, err
	}
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	var out *T
	err = d.c.atomic(ctx, func(ctx context.Context, tc *Client) error {
		td := d.bind(tc)
		id, found, err := td.lookupPrimaryKey(ctx, args.Where)
		if err != nil {
			return err
		}
		if !found {
			return notFound(d.info.Name, "update")
		}
		if _, err := td.updateByPrimaryKey(ctx, updates, id); err != nil {
			return err
		}
		rows, err := td.reload(ctx, proj, id)
		if err != nil {
			return err
		}
		out = &rows[0]
		tc.notifyMutation(ctx, d.info.Name, "update", 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// limitedScope 批量写操作的条件；带 limit 时转为主键子查询
func (d *Delegate[T]) limitedScope(db *gorm.DB, w Where, limit *int) (*gorm.DB, error) {
	expr, err := d.compileWhere(w)
	if err != nil {
		return nil, err
	}
	stmt := db.Model(new(T))
	if limit == nil {
		return stmt.Where(expr), nil
	}
	if *limit < 0 {
		return nil, validationf(d.info.Name, "limit must not be negative")
	}
	pk := d.info.PrimaryKey.Column
	sub := db.Model(new(T)).Select(pk).Where(expr).Order(clause.OrderByColumn{Column: clause.Column{Name: pk}}).Limit(*limit)
	return stmt.Where("? IN (?)", clause.Column{Name: pk}, sub), nil
}

// UpdateMany 批量更新，返回影响行数
func (d *Delegate[T]) UpdateMany(ctx context.Context, args UpdateManyArgs) (BatchPayload, error) {
	updates, err := buildUpdates(d.info, args.Data)
	if err != nil {
		return BatchPayload{}, err
	}
	db, err := d.db(ctx)
	if err != nil {
		return BatchPayload{}, err
	}
	stmt, err := d.limitedScope(db, args.Where, args.Limit)
	if err != nil {
		return BatchPayload{}, err
	}
	if len(updates) == 0 {
		var n int64
		if err := stmt.Count(&n).Error; err != nil {
			return BatchPayload{}, d.classify(err)
		}
		return BatchPayload{Count: n}, nil
	}
	res := stmt.Updates(updates)
	if res.Error != nil {
		return BatchPayload{}, d.classify(res.Error)
	}
	d.c.notifyMutation(ctx, d.info.Name, "updateMany", res.RowsAffected)
	return BatchPayload{Count: res.RowsAffected}, nil
}

// selectPrimaryKeys 按主键升序返回命中记录的主键
func (d *Delegate[T]) selectPrimaryKeys(ctx context.Context, w Where, limit *int) ([]interface{}, error) {
	db, err := d.db(ctx)
	if err != nil {
		return nil, err
	}
	expr, err := d.compileWhere(w)
	if err != nil {
		return nil, err
	}
	pk := d.info.PrimaryKey.Column
	stmt := db.Model(new(T)).Select(pk).Where(expr).Order(clause.OrderByColumn{Column: clause.Column{Name: pk}})
	if limit != nil {
		if *limit < 0 {
			return nil, validationf(d.info.Name, "limit must not be negative")
		}
		stmt = stmt.Limit(*limit)
	}
	var rows []T
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, d.classify(err)
	}
	ids := make([]interface{}, 0, len(rows))
	for i := range rows {
		ids = append(ids, d.primaryKeyOf(ctx, &rows[i]))
	}
	return ids, nil
}

// UpdateManyAndReturn 批量更新并返回更新后的记录
func (d *Delegate[T]) UpdateManyAndReturn(ctx context.Context, args UpdateManyAndReturnArgs) ([]T, error) {
	updates, err := buildUpdates(d.info, args.Data)
	if err != nil {
		return nil, err
	}
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	var out []T
	err = d.c.atomic(ctx, func(ctx context.Context, tc *Client) error {
		td := d.bind(tc)
		ids, err := td.selectPrimaryKeys(ctx, args.Where, args.Limit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			out = []T{}
			return nil
		}
		if _, err := td.updateByPrimaryKey(ctx, updates, ids...); err != nil {
			return err
		}
		rows, err := td.reload(ctx, proj, ids...)
		if err != nil {
			return err
		}
		out = rows
		if len(updates) > 0 {
			tc.notifyMutation(ctx, d.info.Name, "updateManyAndReturn", int64(len(ids)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert 唯一键命中则更新，否则创建
func (d *Delegate[T]) Upsert(ctx context.Context, args UpsertArgs[T]) (*T, error) {
	if err := d.requireUnique(args.Where, "upsert"); err != nil {
		return nil, err
	}
	updates, err := buildUpdates(d.info, args.Update)
	if err != nil {
		return nil, err
	}
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	var out *T
	err = d.c.atomic(ctx, func(ctx context.Context, tc *Client) error {
		td := d.bind(tc)
		id, found, err := td.lookupPrimaryKey(ctx, args.Where)
		if err != nil {
			return err
		}
		if found {
			if _, err := td.updateByPrimaryKey(ctx, updates, id); err != nil {
				return err
			}
		} else {
			row, err := td.insert(ctx, args.Create, false)
			if err != nil {
				return err
			}
			id = td.primaryKeyOf(ctx, row)
		}
		rows, err := td.reload(ctx, proj, id)
		if err != nil {
			return err
		}
		out = &rows[0]
		tc.notifyMutation(ctx, d.info.Name, "upsert", 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete 按唯一键删除并返回被删除的记录，不存在时返回 P2025
func (d *Delegate[T]) Delete(ctx context.Context, args DeleteArgs) (*T, error) {
	if err := d.requireUnique(args.Where, "delete"); err != nil {
		return nil, err
	}
	proj, err := d.projection(args.Select, args.Omit, args.Include)
	if err != nil {
		return nil, err
	}
	var out *T
	err = d.c.atomic(ctx, func(ctx context.Context, tc *Client) error {
		td := d.bind(tc)
		rows, err := td.findMany(ctx, readQuery{where: args.Where, take: Take(1), proj: proj})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return notFound(d.info.Name, "delete")
		}
		db, err := td.db(ctx)
		if err != nil {
			return err
		}
		expr, err := td.compileWhere(td.primaryWhere(td.primaryKeyOf(ctx, &rows[0])))
		if err != nil {
			return err
		}
		if err := db.Where(expr).Delete(new(T)).Error; err != nil {
			return td.classify(err)
		}
		out = &rows[0]
		tc.notifyMutation(ctx, d.info.Name, "delete", 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMany 批量删除，返回删除行数
func (d *Delegate[T]) DeleteMany(ctx context.Context, args DeleteManyArgs) (BatchPayload, error) {
	db, err := d.db(ctx)
	if err != nil {
		return BatchPayload{}, err
	}
	stmt, err := d.limitedScope(db, args.Where, args.Limit)
	if err != nil {
		return BatchPayload{}, err
	}
	res := stmt.Delete(new(T))
	if res.Error != nil {
		return BatchPayload{}, d.classify(res.Error)
	}
	if res.RowsAffected > 0 {
		d.c.notifyMutation(ctx, d.info.Name, "deleteMany", res.RowsAffected)
	}
	return BatchPayload{Count: res.RowsAffected}, nil
}

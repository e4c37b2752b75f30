package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// 模型操作名
const (
	ActionFindUnique          = "findUnique"
	ActionFindUniqueOrThrow   = "findUniqueOrThrow"
	ActionFindFirst           = "findFirst"
	ActionFindFirstOrThrow    = "findFirstOrThrow"
	ActionFindMany            = "findMany"
	ActionCreate              = "create"
	ActionCreateMany          = "createMany"
	ActionCreateManyAndReturn = "createManyAndReturn"
	ActionUpdate              = "update"
	ActionUpdateMany          = "updateMany"
	ActionUpdateManyAndReturn = "updateManyAndReturn"
	ActionUpsert              = "upsert"
	ActionDelete              = "delete"
	ActionDeleteMany          = "deleteMany"
	ActionCount               = "count"
	ActionAggregate           = "aggregate"
	ActionGroupBy             = "groupBy"
)

// Operation 批量事务中的单个操作
type Operation struct {
	Model  string          `json:"model"`
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Dispatch 以 JSON 参数执行模型操作，返回可直接序列化的结果
func (c *Client) Dispatch(ctx context.Context, model, action string, args json.RawMessage) (interface{}, error) {
	switch model {
	case ModelUsers:
		return dispatch(ctx, c.Users, action, args)
	case ModelProducts:
		return dispatch(ctx, c.Products, action, args)
	case ModelOrders:
		return dispatch(ctx, c.Orders, action, args)
	case ModelCart:
		return dispatch(ctx, c.Cart, action, args)
	case ModelOrderDetails:
		return dispatch(ctx, c.OrderDetails, action, args)
	case ModelReviews:
		return dispatch(ctx, c.Reviews, action, args)
	case ModelPayments:
		return dispatch(ctx, c.Payments, action, args)
	case ModelCategory:
		return dispatch(ctx, c.Category, action, args)
	}
	return nil, validationf("", "unknown model %q", model)
}

// DispatchBatch 在同一个事务中按顺序执行多个操作
func (c *Client) DispatchBatch(ctx context.Context, ops []Operation) ([]interface{}, error) {
	results := make([]interface{}, len(ops))
	err := c.Tx(ctx, func(ctx context.Context, tx *Client) error {
		for i, op := range ops {
			out, err := tx.Dispatch(ctx, op.Model, op.Action, op.Args)
			if err != nil {
				return fmt.Errorf("operation %d (%s.%s): %w", i, op.Model, op.Action, err)
			}
			results[i] = out
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func decodeArgs(model string, raw json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return validationf(model, "invalid arguments: %v", err)
	}
	return nil
}

func dispatch[T any](ctx context.Context, d *Delegate[T], action string, raw json.RawMessage) (interface{}, error) {
	model := d.info.Name
	switch action {
	case ActionFindUnique, ActionFindUniqueOrThrow:
		var args FindUniqueArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		find := d.FindUnique
		if action == ActionFindUniqueOrThrow {
			find = d.FindUniqueOrThrow
		}
		row, err := find(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeOne(row, args.Select, args.Omit, args.Include)
	case ActionFindFirst, ActionFindFirstOrThrow, ActionFindMany:
		var args FindManyArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		switch action {
		case ActionFindFirst, ActionFindFirstOrThrow:
			find := d.FindFirst
			if action == ActionFindFirstOrThrow {
				find = d.FindFirstOrThrow
			}
			row, err := find(ctx, args)
			if err != nil {
				return nil, err
			}
			return d.shapeOne(row, args.Select, args.Omit, args.Include)
		}
		rows, err := d.FindMany(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeMany(rows, args.Select, args.Omit, args.Include)
	case ActionCreate:
		var args CreateArgs[T]
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		row, err := d.Create(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeOne(row, args.Select, args.Omit, args.Include)
	case ActionCreateMany:
		var args CreateManyArgs[T]
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		return d.CreateMany(ctx, args)
	case ActionCreateManyAndReturn:
		var args CreateManyAndReturnArgs[T]
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		rows, err := d.CreateManyAndReturn(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeMany(rows, args.Select, args.Omit, args.Include)
	case ActionUpdate:
		var args UpdateArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		row, err := d.Update(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeOne(row, args.Select, args.Omit, args.Include)
	case ActionUpdateMany:
		var args UpdateManyArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		return d.UpdateMany(ctx, args)
	case ActionUpdateManyAndReturn:
		var args UpdateManyAndReturnArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		rows, err := d.UpdateManyAndReturn(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeMany(rows, args.Select, args.Omit, args.Include)
	case ActionUpsert:
		var args UpsertArgs[T]
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		row, err := d.Upsert(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeOne(row, args.Select, args.Omit, args.Include)
	case ActionDelete:
		var args DeleteArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		row, err := d.Delete(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.shapeOne(row, args.Select, args.Omit, args.Include)
	case ActionDeleteMany:
		var args DeleteManyArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		return d.DeleteMany(ctx, args)
	case ActionCount:
		var args CountArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		return d.Count(ctx, args)
	case ActionAggregate:
		var args AggregateArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		return d.Aggregate(ctx, args)
	case ActionGroupBy:
		var args GroupByArgs
		if err := decodeArgs(model, raw, &args); err != nil {
			return nil, err
		}
		return d.GroupBy(ctx, args)
	}
	return nil, validationf(model, "unknown action %q", action)
}

// shapeOne 按 select / omit 裁剪输出字段；未裁剪时原样返回
func (d *Delegate[T]) shapeOne(row *T, sel, omit Selection, inc Include) (interface{}, error) {
	if row == nil {
		return nil, nil
	}
	proj, err := d.projection(sel, omit, inc)
	if err != nil {
		return nil, err
	}
	if !proj.restrict {
		return row, nil
	}
	return shapeRow(proj, row)
}

func (d *Delegate[T]) shapeMany(rows []T, sel, omit Selection, inc Include) (interface{}, error) {
	proj, err := d.projection(sel, omit, inc)
	if err != nil {
		return nil, err
	}
	if !proj.restrict {
		return rows, nil
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for i := range rows {
		m, err := shapeRow(proj, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func shapeRow(proj projection, row interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if proj.keep(k) {
			out[k] = v
		}
	}
	return out, nil
}

package sheet

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CellFunc computes the value of the target column for one zero-based row.
type CellFunc func(ctx context.Context, row int) (string, error)

// Fill evaluates fn for every row of g and writes the result into column,
// running at most limit evaluations at once. The first error cancels the
// remaining rows; cells already written stay written.
func Fill(ctx context.Context, g *Grid, column int, fn CellFunc, limit int) error {
	if column < 0 {
		return fmt.Errorf("sheet: invalid fill column %d", column)
	}
	if limit < 1 {
		limit = 1
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	rows := g.Rows()
	for row := 0; row < rows; row++ {
		row := row
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, row)
			if err != nil {
				return fmt.Errorf("sheet: row %d: %w", row+1, err)
			}
			g.Set(column, row, v)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

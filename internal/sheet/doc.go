// Package sheet is a CSV-backed stand-in for the spreadsheet host.
//
// It resolves A1 references for formula context and fills a column by
// evaluating a formula per row:
//
//	g, _ := sheet.Read(f)
//	col, _ := sheet.ParseColumn("C")
//	err := sheet.Fill(ctx, g, col, func(ctx context.Context, row int) (string, error) {
//	    return eval.Generate(ctx, "g", prompt, sheet.Ref(0, row)), nil
//	}, 4)
package sheet

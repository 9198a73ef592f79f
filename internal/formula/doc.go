// Package formula is the cell boundary of CellGen: generate(code, prompt, ref).
//
// Codes are "g" (Gemini), "c" (ChatGPT) and "d" (DeepSeek), case-insensitive.
// The optional ref is resolved through a host Resolver and its text becomes the
// prompt context. Failures never escape as errors: Generate returns a string
// starting with "Error:" so it can be written into a cell, and the full
// diagnostic goes to the log.
//
// Parse reads the textual form =GENERATE("g", "prompt", A1).
package formula

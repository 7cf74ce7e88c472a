// Package options contains the command options.
package options

// Input selects where a graph and its blocks are read from. A stage name
// reads both from the checkpoint database instead of files.
type Input struct {
	Graph       string   // graph snapshot JSON file
	Blocks      string   // block list JSON file
	Stage       string   // checkpoint stage to load
	EntryPoints []string // entry addresses used when the graph is built from blocks
}

// Output selects where the resulting graph and blocks are written to.
type Output struct {
	Graph  string
	Blocks string
	Stage  string // checkpoint stage to save
}

// Run options of the edit pipeline.
type Run struct {
	Input
	Output

	Edits  string // HCL edit script applied before the passes
	Passes bool   // run the built-in passes
}

// Package tscalias rewrites path-alias specifiers in compiled JavaScript and
// declaration output into specifiers the runtime can resolve.
//
// # Pipeline
//
// New resolves the project configuration, following its extends chain, and
// builds an index of the alias patterns it declares. For every output file
// selected by the input glob, Run then:
//
//  1. Scans the import, export, require and dynamic import specifiers with
//     tree-sitter.
//  2. Looks each specifier up in the alias index.
//  3. Maps the matched source location to its compiled location and makes
//     it relative to the importing file, optionally appending the real file
//     extension.
//  4. Passes the result through the replacer pipeline, which may override
//     it.
//  5. Writes the file back atomically when anything changed.
//
// Relative specifiers, package imports and anything no alias matches are
// left alone, so running twice changes nothing.
//
// # Usage
//
//	e, err := tscalias.New("tsconfig.json",
//		tscalias.WithConfigOptions(tscalias.WithResolveFullPaths(true)),
//		tscalias.WithSink(tscalias.NewZapSink(logger)),
//	)
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.Run(ctx)
//
// Watch keeps rewriting while a compiler in watch mode emits files.
// RewriteFile and RewriteContent rewrite a single file for embedders.
//
// # Replacers
//
// The configuration's tool block lists replacers by name. The built-ins are
// "default", which applies the alias rewrite, and "base-url", which rewrites
// bare specifiers naming files under compilerOptions.baseUrl. A replacer
// with a file ending in .risor runs that Risor script per specifier. Go code
// adds replacers with WithReplacers.
package tscalias

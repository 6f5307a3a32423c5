// Package fsys abstracts the filesystem calls made by the save path so tests
// can inject faults.
//
// The package defines three interfaces:
//
//   - [File]: a plain open file used by the direct and temp strategies
//   - [PendingFile]: a surrogate that becomes visible only on commit
//   - [FileSystem]: opening, creating, removing and inspecting files
//
// # Implementations
//
//   - [LocalFS]: production implementation on top of os and atomicfile
//   - [FaultyFS]: test wrapper that fails writes, closes or commits and
//     can delay a commit to widen the publish window
//
// Production code uses [Default]:
//
//	p, err := fsys.Default.CreatePending(path, 0o644)
//
// Tests inject a [FaultyFS]:
//
//	ffs := fsys.NewFaultyFS(nil)
//	ffs.AddRule("doc.txt", fsys.Fault{FailAfterBytes: 1})
package fsys

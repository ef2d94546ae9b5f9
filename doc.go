// Package sidemerge unifies two environment-specific builds of the same
// compiled Java class into a single class that is a structural superset of
// both.
//
// Game distributions often ship two variants of each class: one compiled for
// the client and one for the dedicated server, each stripped of the members
// the other environment does not use. sidemerge correlates the members of
// both variants, emits them in an order that preserves each input's own
// ordering, and tags every member that exists on only one side with a marker
// annotation so downstream tools can project the unified class back down to
// either environment.
//
// Basic usage:
//
//	m := sidemerge.NewMerger()
//
//	// clientBytes and serverBytes hold the two .class files
//	merged, err := m.Merge(clientBytes, serverBytes)
//
//	// or work on decoded trees directly
//	out, report := m.MergeClasses(clientClass, serverClass)
//	fmt.Println(report.ClientInterfaces) // interfaces the server build lacks
//
// Classes that exist in only one input jar are tagged as a whole:
//
//	sidemerge.AnnotateSide(c, sidemerge.SideServer)
//
// Members present in both variants are assumed identical and are emitted
// from the client variant unchanged; no content comparison is performed.
package sidemerge

// Package hcl provides the HCL implementation of config.Loader: workflow
// files and the settings file. It is responsible for file discovery, HCL
// parsing and cty-to-Go conversion.
//
// A workflow is one or more .hcl files:
//
//	workflow "demo" {
//	  interval = 0.5
//	}
//
//	node "input" "src" {
//	  value = "hello"
//	}
//
//	node "text_processor" "upper" {
//	  operation = "uppercase"
//	  input     = node.src.output
//	}
//
// Attributes that reference node.<id>[.<output>] become edges; every other
// attribute is evaluated and becomes a static parameter. Explicit edge blocks
// (from = "src.output", to = "upper.input") are accepted as well.
package hcl

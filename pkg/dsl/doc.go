/*
Package dsl decodes weft expression documents.

A document is YAML (or JSON) with a name and a root node. Every node is a map with
exactly one kind key:

	result:   <value>                     a plain value
	failure:  <message>                   an error
	effect:   {type: <t>, payload: <p>}   a request the host resolves
	async:    <definition>                a call to a registered definition,
	args:     [<node or value>...]        with its arguments
	fallback: {attempt: <node>, else: <node>}
	pending:  {}                          a value not yet available
	all:      [<node>...]                 shorthand for async collect
	first:    [<node>...]                 shorthand for async first

Argument lists may also hold bare scalars, which are passed as values.

Example:

	name: greeting
	root:
	  async: concat
	  args:
	    - "Hello, "
	    - effect: {type: name}
	    - result: "!"

Effect resolution files list effects with either a value or an error:

	- type: name
	  value: weft
	- type: fetch
	  payload: /users/1
	  error: not found
*/
package dsl

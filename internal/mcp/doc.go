// Package mcp exposes the document service as MCP tools over stdio.
//
// Tools:
//
//	index_document   index a PDF or PPTX file from a local path
//	retrieve_chunks  return the chunks most relevant to a query
//	rag_status       report the wiring and the indexed document
package mcp

package ml_parser

import (
	"strings"
)

// TagContentType controls how the lexer reads the body of a tag.
type TagContentType int

const (
	TagContentTypePARSABLE_DATA TagContentType = iota
	TagContentTypeRAW_TEXT
	TagContentTypeESCAPABLE_RAW_TEXT
)

// TagDefinition describes the parsing rules of one element name.
type TagDefinition interface {
	ClosedByParent() bool
	ImplicitNamespacePrefix() string
	IsVoid() bool
	IgnoreFirstLf() bool
	CanSelfClose() bool
	PreventNamespaceInheritance() bool
	IsClosedByChild(name string) bool
	GetContentType(prefix string) TagContentType
}

// TagDefinitionResolver maps an element name to its rules.
type TagDefinitionResolver func(tagName string) TagDefinition

// SplitNsName splits ":ns:name" into its namespace and local name. Names without a
// leading colon have no namespace.
func SplitNsName(elementName string) (string, string) {
	if elementName == "" || elementName[0] != ':' {
		return "", elementName
	}
	colon := strings.IndexByte(elementName[1:], ':')
	if colon == -1 {
		return "", elementName
	}
	colon++
	return elementName[1:colon], elementName[colon+1:]
}

func IsNgContainer(tagName string) bool {
	_, name := SplitNsName(tagName)
	return name == "ng-container"
}

func IsNgContent(tagName string) bool {
	_, name := SplitNsName(tagName)
	return name == "ng-content"
}

func IsNgTemplate(tagName string) bool {
	_, name := SplitNsName(tagName)
	return name == "ng-template"
}

// GetNsPrefix returns the namespace of a merged name, or "".
func GetNsPrefix(fullName string) string {
	prefix, _ := SplitNsName(fullName)
	return prefix
}

// MergeNsAndName builds ":prefix:name", or just the name when prefix is empty.
func MergeNsAndName(prefix, localName string) string {
	if prefix != "" {
		return ":" + prefix + ":" + localName
	}
	return localName
}

package webgpu

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// computeEntryRegex matches @compute functions and captures the entry point name
	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(1) var<storage, read> original: array<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// computeLayout is the reflection of a compute kernel's WGSL source.
type computeLayout struct {
	entryPoint    string
	workgroupSize [3]uint32
	entries       []wgpu.BindGroupLayoutEntry
	names         []string
}

// reflectCompute parses the entry point, workgroup size, and group 0 buffer bindings of a
// compute kernel. Bindings must be buffers numbered contiguously from 0.
//
// Parameters:
//   - source: the WGSL source of one kernel
//
// Returns:
//   - computeLayout: the parsed layout
//   - error: an error if the source has no compute entry point or an unusable binding set
func reflectCompute(source string) (computeLayout, error) {
	layout := computeLayout{
		entryPoint:    parseComputeEntryPoint(source),
		workgroupSize: parseWorkgroupSize(source),
	}
	if layout.entryPoint == "" {
		return layout, fmt.Errorf("wgsl: no @compute entry point")
	}

	groups, names := parseBindGroupLayouts(source, wgpu.ShaderStageCompute)
	for g := range groups {
		if g != 0 {
			return layout, fmt.Errorf("wgsl: %s declares bind group %d, only group 0 is supported", layout.entryPoint, g)
		}
	}
	entries := groups[0].Entries
	for i, e := range entries {
		if int(e.Binding) != i {
			return layout, fmt.Errorf("wgsl: %s bindings are not contiguous at %d", layout.entryPoint, i)
		}
		if e.Buffer.Type == wgpu.BufferBindingTypeUndefined {
			return layout, fmt.Errorf("wgsl: %s binding %d (%s) is not a buffer", layout.entryPoint, i, names[0][i])
		}
		layout.names = append(layout.names, names[0][i])
	}
	layout.entries = entries
	return layout, nil
}

// parseBindGroupLayouts extracts all @group(N) @binding(M) buffer declarations from WGSL
// source and returns them as wgpu.BindGroupLayoutDescriptor values grouped by group index.
// Each descriptor's entries are sorted by binding index.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - visibility: the shader stage visibility flag to set on each entry
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: layout descriptors keyed by group index
//   - map[int]map[int]string: variable names keyed by group and binding index
func parseBindGroupLayouts(source string, visibility wgpu.ShaderStage) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	groups := make(map[int][]wgpu.BindGroupLayoutEntry)
	varNames := make(map[int]map[int]string)
	cleaned := stripComments(source)

	for _, match := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(match[1])
		binding, _ := strconv.Atoi(match[2])
		addressSpace := strings.TrimSpace(match[3])
		varName := strings.TrimSpace(match[4])

		groups[group] = append(groups[group], classifyBuffer(uint32(binding), visibility, addressSpace))

		if varNames[group] == nil {
			varNames[group] = make(map[int]string)
		}
		varNames[group][binding] = varName
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		result[g] = wgpu.BindGroupLayoutDescriptor{
			Entries: entries,
		}
	}
	return result, varNames
}

// classifyBuffer creates a wgpu.BindGroupLayoutEntry from the address space of a WGSL
// declaration. Handle types (textures, samplers) leave the buffer type undefined.
//
// Parameters:
//   - binding: the binding index from @binding(N)
//   - visibility: the shader stage visibility flag
//   - addressSpace: the address space qualifier (e.g. "uniform", "storage, read_write")
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the layout entry for the resource
func classifyBuffer(binding uint32, visibility wgpu.ShaderStage, addressSpace string) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
	}
	switch {
	case addressSpace == "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case strings.HasPrefix(addressSpace, "storage"):
		if strings.Contains(addressSpace, "read_write") {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		} else {
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
	}
	return entry
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from WGSL source.
// Omitted dimensions default to 1. Returns [1, 1, 1] if no annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	match := workgroupSizeRegex.FindStringSubmatch(stripComments(source))
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseComputeEntryPoint returns the name of the first @compute function, or an empty string.
func parseComputeEntryPoint(source string) string {
	if match := computeEntryRegex.FindStringSubmatch(stripComments(source)); match != nil {
		return match[1]
	}
	return ""
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
// Block comments may be nested.
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with all comments removed
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

func stripLineComments(source string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i++
				continue
			}
			if source[i] == '*' && source[i+1] == '/' && depth > 0 {
				depth--
				i++
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

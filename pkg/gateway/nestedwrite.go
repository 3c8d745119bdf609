package gateway

// WriteTree is the normalized, depth-bounded plan of one create/update
// request: scalar field assignments plus, per relation field, a sub-node of
// explicit create/connect/disconnect/delete/update sub-operations. Implicit
// shorthand syntax is normalized to the explicit shape before the tree is
// handed to a store client.
type WriteTree map[string]interface{}

// Relation sub-operation keys, in the order they are copied through.
var writeSubOps = []string{"create", "connect", "disconnect", "delete", "update"}

// TranslateNestedWrite converts a validated payload into a WriteTree.
// Depth is measured in relation hops: a relation's own non-relation
// sub-fields do not consume budget. A relation hop beyond the policy's
// MaxNestedDepth is a hard validation error rather than a silent drop.
func TranslateNestedWrite(payload map[string]interface{}, desc *ModelDescriptor, policy *SecurityPolicy, isUpdate bool) (WriteTree, error) {
	return translateWriteNode(payload, desc, policy.MaxNestedDepth, 0, isUpdate)
}

func translateWriteNode(payload map[string]interface{}, desc *ModelDescriptor, maxDepth, depth int, isUpdate bool) (WriteTree, error) {
	out := make(WriteTree, len(payload))

	for key, value := range payload {
		isRelation := desc != nil && desc.IsRelation(key)

		if value == nil {
			// A null relation emits no operation at all; a null scalar is a
			// legitimate assignment and passes through.
			if !isRelation {
				out[key] = nil
			}
			continue
		}

		if !isRelation {
			out[key] = value
			continue
		}

		obj, isObject := value.(map[string]interface{})
		if !isObject {
			// Arrays (and any other non-object shape) pass through without
			// relation-aware recursion.
			out[key] = value
			continue
		}

		if depth >= maxDepth {
			return nil, &NestedDepthError{Field: key, Max: maxDepth}
		}

		target := desc.RelationTarget(key)
		node, err := translateRelationObject(obj, key, target, maxDepth, depth, isUpdate)
		if err != nil {
			return nil, err
		}
		if len(node) > 0 {
			out[key] = node
		}
	}

	return out, nil
}

func translateRelationObject(obj map[string]interface{}, field string, target *ModelDescriptor, maxDepth, depth int, isUpdate bool) (WriteTree, error) {
	node := make(WriteTree)

	if isUpdate {
		explicit := false
		for _, op := range writeSubOps {
			value, present := obj[op]
			if !present {
				continue
			}
			explicit = true
			switch op {
			case "create", "update":
				translated, err := translateSubPayload(value, target, maxDepth, depth, op == "update")
				if err != nil {
					return nil, err
				}
				node[op] = translated
			default:
				node[op] = value
			}
		}
		if !explicit && len(obj) > 0 {
			// Bare object shorthand: update the related entity in place.
			translated, err := translateWriteNode(obj, target, maxDepth, depth+1, true)
			if err != nil {
				return nil, err
			}
			node["update"] = translated
		}
		return node, nil
	}

	// Create mode: only create and connect are meaningful.
	_, hasCreate := obj["create"]
	_, hasConnect := obj["connect"]
	if hasCreate || hasConnect {
		if hasCreate {
			translated, err := translateSubPayload(obj["create"], target, maxDepth, depth, false)
			if err != nil {
				return nil, err
			}
			node["create"] = translated
		}
		if hasConnect {
			node["connect"] = obj["connect"]
		}
		return node, nil
	}

	// Bare object shorthand: create a new related entity.
	translated, err := translateWriteNode(obj, target, maxDepth, depth+1, false)
	if err != nil {
		return nil, err
	}
	node["create"] = translated
	return node, nil
}

// translateSubPayload recursively translates the payload of an explicit
// create/update sub-operation. Non-object payloads (arrays of descriptors)
// are the caller's explicit responsibility and pass through.
func translateSubPayload(value interface{}, target *ModelDescriptor, maxDepth, depth int, isUpdate bool) (interface{}, error) {
	obj, isObject := value.(map[string]interface{})
	if !isObject {
		return value, nil
	}
	return translateWriteNode(obj, target, maxDepth, depth+1, isUpdate)
}

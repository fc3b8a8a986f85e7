package operation

import (
	"context"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for operations and their
// resource-type links.
type Store interface {
	// CreateOperation persists a new operation.
	CreateOperation(ctx context.Context, o *Operation) error

	// GetOperation retrieves an operation by ID, regardless of status.
	GetOperation(ctx context.Context, opID id.OperationID) (*Operation, error)

	// GetOperationByIdentity retrieves the Enabled operation with the given
	// identity tuple.
	GetOperationByIdentity(ctx context.Context, ident Identity) (*Operation, error)

	// GetOperationsByKeys retrieves the Enabled operations with the given
	// keys under one owner/app scope. Missing keys are simply absent from
	// the result.
	GetOperationsByKeys(ctx context.Context, ownerUserID, appID string, keys []string) ([]*Operation, error)

	// UpdateOperation persists changes to an operation.
	UpdateOperation(ctx context.Context, o *Operation) error

	// DisableOtherOperations soft-deletes every Enabled operation sharing
	// the identity tuple except keep.
	DisableOtherOperations(ctx context.Context, ident Identity, keep id.OperationID, changeUserID string) error

	// DeleteOperationCascade soft-deletes the operation and every res link
	// referencing it, atomically.
	DeleteOperationCascade(ctx context.Context, opID id.OperationID, changeUserID string) error

	// ListOperations returns Enabled operations matching the filter.
	ListOperations(ctx context.Context, filter *ListFilter) ([]*Operation, error)

	// CountOperations returns the number of Enabled operations matching the filter.
	CountOperations(ctx context.Context, filter *ListFilter) (int64, error)

	// CreateResLink persists a new operation-resource link.
	CreateResLink(ctx context.Context, l *ResLink) error

	// DeleteResLink soft-deletes the Enabled link between op and res type.
	DeleteResLink(ctx context.Context, opID id.OperationID, resType string, changeUserID string) error

	// DeleteResLinksByResType soft-deletes every Enabled link for a resource
	// type under one owner/app scope. Used when resources of that type go away.
	DeleteResLinksByResType(ctx context.Context, ownerUserID, appID, resType string, changeUserID string) error

	// ListResLinksForOp returns Enabled links for an operation.
	ListResLinksForOp(ctx context.Context, opID id.OperationID) ([]*ResLink, error)

	// ListOpsForResType returns Enabled operations linked to a resource type
	// under one owner/app scope.
	ListOpsForResType(ctx context.Context, ownerUserID, appID, resType string) ([]*Operation, error)
}

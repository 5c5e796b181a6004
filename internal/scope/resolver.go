// Package scope decides, for every request, which hostel a principal may
// act on. Domain services call Resolve before touching the store and only
// consume the returned hostel id.
package scope

import (
	"time"

	"hostelops/internal/identity"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/metrics"
)

// Action requested on an entity
type Action string

const (
	ActionRead    Action = "read"
	ActionList    Action = "list"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionAdmin   Action = "admin"
)

// Entity type targeted by a request
type Entity string

const (
	EntityHostel       Entity = "hostel"
	EntityHostelInfo   Entity = "hostel_info"
	EntityRoom         Entity = "room"
	EntityBed          Entity = "bed"
	EntityTenant       Entity = "tenant"
	EntityInvoice      Entity = "invoice"
	EntityPayment      Entity = "payment"
	EntityComplaint    Entity = "complaint"
	EntityLeave        Entity = "leave"
	EntitySubscription Entity = "subscription"
	EntityPlan         Entity = "plan"
	EntityNotice       Entity = "notice"
	EntityPublicNotice Entity = "public_notice"
	EntityMessMenu     Entity = "mess_menu"
	EntityUser         Entity = "user"
	EntityVisitor      Entity = "visitor"
	EntityAuditLog     Entity = "audit_log"
	EntityNotification Entity = "notification"
)

// Request is what the caller wants to do. TargetHostelID nil means "not specified".
type Request struct {
	Action         Action
	Entity         Entity
	TargetHostelID *uint
}

// Decision is Allow(HostelID) or Deny(Reason).
//
// HostelID nil on an allowed decision means every hostel (SUPER_ADMIN
// without a target). SelfOnly means the domain layer must narrow the
// query or the new row to the caller's own tenant profile.
type Decision struct {
	Allowed  bool
	HostelID *uint
	SelfOnly bool
	Reason   string
}

// Err converts a denial into a Denied error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperrors.Deniedf(d.Reason, "access denied: %s", d.Reason)
}

// Hostel returns the effective hostel id, 0 when unrestricted.
func (d Decision) Hostel() uint {
	if d.HostelID == nil {
		return 0
	}
	return *d.HostelID
}

func allow(hostelID *uint) Decision {
	return Decision{Allowed: true, HostelID: hostelID}
}

func allowSelf(hostelID *uint) Decision {
	return Decision{Allowed: true, HostelID: hostelID, SelfOnly: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Resolve is the single entry point; one scoping function per role.
func Resolve(id *identity.Identity, req Request, now time.Time) Decision {
	var d Decision
	if req.Entity == EntityNotification {
		d = resolveInbox(id, req, now)
		metrics.ObserveScopeDecision(string(id.Role), d.Allowed)
		return d
	}
	switch id.Role {
	case identity.SuperAdmin:
		d = resolveSuperAdmin(req)
	case identity.HostelAdmin:
		d = resolveHostelAdmin(id, req)
	case identity.Tenant:
		d = resolveTenant(id, req)
	case identity.Visitor:
		d = resolveVisitor(id, req, now)
	default:
		d = deny(apperrors.ReasonRoleNotPermitted)
	}
	metrics.ObserveScopeDecision(string(id.Role), d.Allowed)
	return d
}

func resolveSuperAdmin(req Request) Decision {
	return allow(copyID(req.TargetHostelID))
}

// hostel admins manage everything inside their hostel except the plan catalogue,
// subscriptions and hostel records themselves
var hostelAdminDenied = map[Entity]map[Action]bool{
	EntityPlan:         {ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionAdmin: true},
	EntitySubscription: {ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionAdmin: true},
	EntityHostel:       {ActionCreate: true, ActionDelete: true, ActionRestore: true, ActionAdmin: true},
}

func resolveHostelAdmin(id *identity.Identity, req Request) Decision {
	home := copyID(id.HostelID)
	if req.TargetHostelID != nil && *req.TargetHostelID != *home {
		return deny(apperrors.ReasonWrongHostel)
	}
	if hostelAdminDenied[req.Entity][req.Action] {
		return deny(apperrors.ReasonRoleNotPermitted)
	}
	return allow(home)
}

var tenantReadable = map[Entity]bool{
	EntityTenant:       true,
	EntityInvoice:      true,
	EntityPayment:      true,
	EntityComplaint:    true,
	EntityLeave:        true,
	EntityHostelInfo:   true,
	EntityNotice:       true,
	EntityPublicNotice: true,
	EntityMessMenu:     true,
}

var tenantCreatable = map[Entity]bool{
	EntityComplaint: true,
	EntityLeave:     true,
	EntityPayment:   true,
}

// rows that belong to a tenant; hostel-wide entities are readable without narrowing
var tenantOwned = map[Entity]bool{
	EntityTenant:    true,
	EntityInvoice:   true,
	EntityPayment:   true,
	EntityComplaint: true,
	EntityLeave:     true,
}

func resolveTenant(id *identity.Identity, req Request) Decision {
	home := copyID(id.HostelID)
	if req.TargetHostelID != nil && *req.TargetHostelID != *home {
		return deny(apperrors.ReasonWrongHostel)
	}
	switch req.Action {
	case ActionRead, ActionList:
		if !tenantReadable[req.Entity] {
			return deny(apperrors.ReasonRoleNotPermitted)
		}
	case ActionCreate:
		if !tenantCreatable[req.Entity] {
			return deny(apperrors.ReasonRoleNotPermitted)
		}
	default:
		return deny(apperrors.ReasonRoleNotPermitted)
	}
	if tenantOwned[req.Entity] {
		return allowSelf(home)
	}
	return allow(home)
}

var visitorWhitelist = map[Entity]bool{
	EntityHostelInfo:   true,
	EntityPublicNotice: true,
	EntityMessMenu:     true,
}

func resolveVisitor(id *identity.Identity, req Request, now time.Time) Decision {
	if id.VisitorExpiry == nil || !id.VisitorExpiry.After(now) {
		return deny(apperrors.ReasonExpired)
	}
	home := copyID(id.HostelID)
	if req.TargetHostelID != nil && *req.TargetHostelID != *home {
		return deny(apperrors.ReasonWrongHostel)
	}
	if req.Action != ActionRead && req.Action != ActionList {
		return deny(apperrors.ReasonRoleNotPermitted)
	}
	if !visitorWhitelist[req.Entity] {
		return deny(apperrors.ReasonRoleNotPermitted)
	}
	return allow(home)
}

// resolveInbox covers the caller's own notifications. Inbox rows belong to
// a user, not a hostel, so the decision is always SelfOnly and unscoped.
func resolveInbox(id *identity.Identity, req Request, now time.Time) Decision {
	if !id.Role.Valid() {
		return deny(apperrors.ReasonRoleNotPermitted)
	}
	if id.Role == identity.Visitor && (id.VisitorExpiry == nil || !id.VisitorExpiry.After(now)) {
		return deny(apperrors.ReasonExpired)
	}
	switch req.Action {
	case ActionRead, ActionList, ActionUpdate:
		return allowSelf(nil)
	default:
		return deny(apperrors.ReasonRoleNotPermitted)
	}
}

func copyID(v *uint) *uint {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

package role

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role carries a flat list of permission codes of the form
// "<namespace>.<action>_<entity>", e.g. "crm.view_customers" or
// "reports.change_report".
type Role struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	Permissions []string           `json:"permissions" bson:"permissions"`
	IsSystem    bool               `json:"is_system" bson:"is_system"` // Prevent deletion of system roles
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// PermCode builds a permission code from its parts.
func PermCode(namespace, action, entityName string) string {
	return fmt.Sprintf("%s.%s_%s", namespace, action, entityName)
}

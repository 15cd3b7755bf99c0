package rbac

// Default policy. Students take tests; admins publish exams and see every attempt.
var RolePermissions = map[string][]string{
	"student": {
		"exam:view",
		"response:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"admin": {
		"*", // everything
	},
}

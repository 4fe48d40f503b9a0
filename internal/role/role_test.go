package role

import "testing"

func TestClassify_InstructorRoles(t *testing.T) {
	tests := [][]string{
		{"http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor"},
		{"http://purl.imsglobal.org/vocab/lis/v2/institution/person#Administrator"},
		{"http://purl.imsglobal.org/vocab/lis/v2/system/person#SysAdmin"},
		{"Learner", "Instructor"},
		{"http://purl.imsglobal.org/vocab/lis/v2/membership#Learner", "TeachingAssistant#Instructor"},
	}

	for _, roles := range tests {
		p := Classify(roles)
		if !p.IsInstructor() {
			t.Errorf("Classify(%v).IsInstructor() = false, want true", roles)
		}
		if p.IsStudent() {
			t.Errorf("Classify(%v).IsStudent() = true, want false（講師区分が優先）", roles)
		}
	}
}

func TestClassify_StudentRoles(t *testing.T) {
	tests := [][]string{
		{"http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"},
		{"http://purl.imsglobal.org/vocab/lis/v2/institution/person#Student"},
		{"Mentor", "Learner"},
	}

	for _, roles := range tests {
		p := Classify(roles)
		if p.IsInstructor() {
			t.Errorf("Classify(%v).IsInstructor() = true, want false", roles)
		}
		if !p.IsStudent() {
			t.Errorf("Classify(%v).IsStudent() = false, want true", roles)
		}
	}
}

func TestClassify_EmptyIsNonInstructor(t *testing.T) {
	for _, roles := range [][]string{nil, {}} {
		p := Classify(roles)
		if p.IsInstructor() {
			t.Errorf("Classify(%v).IsInstructor() = true, want false", roles)
		}
		if p.IsStudent() {
			t.Errorf("Classify(%v).IsStudent() = true, want false", roles)
		}
		if p.String() != "none" {
			t.Errorf("String() = %q, want %q", p.String(), "none")
		}
	}
}

// TestClassify_CaseSensitive は部分一致が大文字小文字を区別することを検証する。
func TestClassify_CaseSensitive(t *testing.T) {
	p := Classify([]string{"instructor", "administrator", "learner"})
	if p.IsInstructor() || p.IsStudent() {
		t.Errorf("小文字のロールは一致しないべき: %+v", p)
	}
}

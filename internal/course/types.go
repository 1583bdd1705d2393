// Package course defines course content (modules, lesson nodes, quizzes) and loads it from disk.
package course

// NodeType is the kind of content a lesson node carries.
type NodeType string

const (
	NodeClip NodeType = "clip"
	NodeQuiz NodeType = "quiz"
)

// Visibility controls who can discover a course.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

// Course is an ordered set of modules plus course-level settings.
type Course struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Settings    Settings `yaml:"settings" json:"settings"`
	Modules     []Module `yaml:"modules" json:"modules"`
}

// Settings holds course-wide rules for quizzes and certificates.
type Settings struct {
	PassingThreshold      float64    `yaml:"passing_threshold" json:"passing_threshold"`
	MaxAttempts           int        `yaml:"max_attempts" json:"max_attempts"`
	CertificateTemplateID string     `yaml:"certificate_template_id,omitempty" json:"certificate_template_id,omitempty"`
	IsSelfPaced           bool       `yaml:"is_self_paced" json:"is_self_paced"`
	Prerequisites         []string   `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	Visibility            Visibility `yaml:"visibility" json:"visibility"`
	RetakeCooldownHours   int        `yaml:"retake_cooldown_hours,omitempty" json:"retake_cooldown_hours,omitempty"`
	// CompleteOnExhaustion marks a quiz node completed once its attempts run out.
	// When false an exhausted quiz keeps its successors locked.
	CompleteOnExhaustion bool `yaml:"complete_on_exhaustion,omitempty" json:"complete_on_exhaustion,omitempty"`
}

// Module is an ordered group of lesson nodes.
type Module struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	Order      int    `yaml:"order" json:"order"`
	IsRequired bool   `yaml:"is_required" json:"is_required"`
	Nodes      []Node `yaml:"nodes" json:"nodes"`
}

// Node is the smallest unit of learning content: a clip or a quiz.
type Node struct {
	ID                string   `yaml:"id" json:"id"`
	Title             string   `yaml:"title" json:"title"`
	Type              NodeType `yaml:"type" json:"type"`
	Order             int      `yaml:"order" json:"order"`
	IsRequired        bool     `yaml:"is_required" json:"is_required"`
	EstimatedDuration int      `yaml:"estimated_duration" json:"estimated_duration"` // minutes
	Quiz              *Quiz    `yaml:"quiz,omitempty" json:"quiz,omitempty"`
}

// Quiz holds the questions of a quiz node.
type Quiz struct {
	Questions []Question `yaml:"questions" json:"questions"`
}

// QuestionType is the closed set of supported question variants.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// Question is one quiz question. Exactly one of the variant fields matching Type is set.
type Question struct {
	ID                string       `yaml:"id" json:"id"`
	Type              QuestionType `yaml:"type" json:"type"`
	Prompt            string       `yaml:"prompt" json:"prompt"`
	Points            int          `yaml:"points" json:"points"`
	RemediationClipID string       `yaml:"remediation_clip_id,omitempty" json:"remediation_clip_id,omitempty"`

	MultipleChoice *MultipleChoice `yaml:"multiple_choice,omitempty" json:"multiple_choice,omitempty"`
	TrueFalse      *TrueFalse      `yaml:"true_false,omitempty" json:"true_false,omitempty"`
	ShortAnswer    *ShortAnswer    `yaml:"short_answer,omitempty" json:"short_answer,omitempty"`
}

// MultipleChoice is answered correctly only when the selected set equals the correct set.
type MultipleChoice struct {
	Options        []Option `yaml:"options" json:"options"`
	CorrectOptions []string `yaml:"correct_options" json:"correct_options"`
}

// Option is a selectable answer of a multiple-choice question.
type Option struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// TrueFalse holds the expected boolean answer.
type TrueFalse struct {
	Answer bool `yaml:"answer" json:"answer"`
}

// ShortAnswer lists accepted free-text answers, compared case- and width-insensitively.
type ShortAnswer struct {
	Accepted []string `yaml:"accepted" json:"accepted"`
}

// FindNode returns the node with the given ID and the module containing it.
func (c *Course) FindNode(nodeID string) (Node, Module, bool) {
	for _, m := range c.Modules {
		for _, n := range m.Nodes {
			if n.ID == nodeID {
				return n, m, true
			}
		}
	}
	return Node{}, Module{}, false
}

// TotalDuration returns the summed estimated duration of every node in minutes.
func (c *Course) TotalDuration() int {
	total := 0
	for _, m := range c.Modules {
		for _, n := range m.Nodes {
			total += n.EstimatedDuration
		}
	}
	return total
}

// MaxPoints returns the highest achievable score for the quiz.
func (q *Quiz) MaxPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

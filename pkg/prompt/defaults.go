package prompt

const (
	ContextVar        = "context_str"
	QueryVar          = "query_str"
	ExistingAnswerVar = "existing_answer"
	ContextMsgVar     = "context_msg"
)

// DefaultQATemplate answers query_str from context_str.
var DefaultQATemplate = MustTemplate(`Context information is below.
---------------------
{context_str}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {query_str}
Answer: `)

// DefaultRefineTemplate improves existing_answer with the extra context in context_msg.
var DefaultRefineTemplate = MustTemplate(`The original query is as follows: {query_str}
We have provided an existing answer: {existing_answer}
We have the opportunity to refine the existing answer (only if needed) with some more context below.
------------
{context_msg}
------------
Given the new context, refine the original answer to better answer the query. If the context isn't useful, return the original answer.
Refined Answer: `)
